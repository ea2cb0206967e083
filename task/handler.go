package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/log"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/store"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
)

// TransactionProcessor is the slice of the engine the handler needs.
type TransactionProcessor interface {
	Process(ctx context.Context, t *transaction.Transaction) (transaction.TaskResult, error)
}

// ResultPublisher publishes the outcome batch after processing.
type ResultPublisher interface {
	PublishResults(ctx context.Context, results []transaction.TaskResult) error
}

// Handler turns a batch of queued task bodies into processed results.
type Handler struct {
	processor    TransactionProcessor
	transactions store.TransactionStore
	publisher    ResultPublisher
	logger       log.Logger
}

// NewHandler creates a Handler. publisher may be nil, in which case results
// are not published anywhere. A nil logger is replaced with a no-op logger.
func NewHandler(processor TransactionProcessor, transactions store.TransactionStore, publisher ResultPublisher, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Handler{
		processor:    processor,
		transactions: transactions,
		publisher:    publisher,
		logger:       logger,
	}
}

// Handle decodes the task bodies, loads the referenced transactions in one
// batch and processes each. Undecodable bodies and ids without a stored
// record are logged and skipped; a store I/O failure from the processor
// aborts the batch so the broker's redelivery policy can take over.
func (h *Handler) Handle(ctx context.Context, bodies [][]byte) ([]transaction.TaskResult, error) {
	h.logger.Log(ctx, log.LevelInfo, "handling transaction tasks", log.Int("count", len(bodies)))

	ids := make([]string, 0, len(bodies))

	for _, body := range bodies {
		t, err := Decode(body)
		if err != nil {
			h.logger.Log(ctx, log.LevelError, "dropping undecodable task", log.Err(err))
			continue
		}

		ids = append(ids, t.TransactionID)
	}

	transactions, err := h.transactions.BatchLoad(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("batch load transactions: %w", err)
	}

	if len(transactions) < len(ids) {
		h.logger.Log(ctx, log.LevelWarn, "some queued transactions were not found",
			log.Int("requested", len(ids)), log.Int("loaded", len(transactions)))
	}

	results := make([]transaction.TaskResult, 0, len(transactions))

	for _, t := range transactions {
		result, err := h.processor.Process(ctx, t)
		if err != nil {
			return results, fmt.Errorf("process transaction %q: %w", t.ID, err)
		}

		results = append(results, result)
	}

	if h.publisher != nil && len(results) > 0 {
		if err := h.publisher.PublishResults(ctx, results); err != nil {
			// The balances and statuses are already persisted; a lost
			// notification is not a processing failure.
			h.logger.Log(ctx, log.LevelError, "failed to publish task results", log.Err(err))
		}
	}

	h.logger.Log(ctx, log.LevelInfo, "finished processing transactions", log.Int("count", len(results)))

	return results, nil
}

// EncodeResults serializes a result batch for publishing.
func EncodeResults(results []transaction.TaskResult) ([]byte, error) {
	body, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}

	return body, nil
}
