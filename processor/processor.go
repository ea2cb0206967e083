package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/log"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/store"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/wallet"
	"github.com/shopspring/decimal"
)

const (
	fieldStatus = "status"
	fieldError  = "error"
)

// Processor applies transaction records against the wallet and transaction
// stores. It holds no mutable state and is safe for concurrent use,
// including concurrent calls for the same transaction id.
type Processor struct {
	wallets      store.WalletStore
	transactions store.TransactionStore
	writer       store.TransactWriter
	logger       log.Logger
}

// New creates a Processor. A nil logger is replaced with a no-op logger.
func New(wallets store.WalletStore, transactions store.TransactionStore, writer store.TransactWriter, logger log.Logger) *Processor {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Processor{
		wallets:      wallets,
		transactions: transactions,
		writer:       writer,
		logger:       logger,
	}
}

// EnsureSlot creates a zero-balance currency slot on the owner's wallet if
// one does not exist yet. It reports true when this call created the slot
// and false when the slot already existed; the already-exists case is an
// expected race under concurrent first-time credits, not an error. The
// wallet itself must exist.
func (p *Processor) EnsureSlot(ctx context.Context, ownerID, currencyID string) (bool, error) {
	coin := wallet.CoinField(currencyID)

	err := p.wallets.ConditionalUpdate(ctx, store.Set(
		store.WalletTarget(ownerID), coin, decimal.Zero,
		store.NotExists(coin),
	))

	if errors.Is(err, store.ErrConditionFailed) {
		p.logger.Log(ctx, log.LevelDebug, "currency slot already exists",
			log.String("owner_id", ownerID), log.String("currency_id", currencyID))

		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("ensure slot for owner %q currency %q: %w", ownerID, currencyID, err)
	}

	p.logger.Log(ctx, log.LevelInfo, "created currency slot",
		log.String("owner_id", ownerID), log.String("currency_id", currencyID))

	return true, nil
}

// Process applies one transaction and returns its outcome. Expected
// failures (unmet write preconditions, missing recipient) end the
// transaction in ERROR with the reason persisted best-effort; only store
// I/O failures on the first attempt are returned as errors, leaving the
// record PENDING for the caller's redelivery policy.
func (p *Processor) Process(ctx context.Context, t *transaction.Transaction) (transaction.TaskResult, error) {
	if t == nil {
		return transaction.TaskResult{}, transaction.ValidateForProcessing(nil)
	}

	result := transaction.TaskResult{
		TransactionID: t.ID,
		Type:          t.Type,
		Status:        transaction.StatusCompleted,
		Error:         transaction.ErrorTypeNone,
	}

	p.logger.Log(ctx, log.LevelInfo, "processing transaction",
		log.String("transaction_id", t.ID),
		log.String("type", string(t.Type)),
		log.String("currency_id", t.CurrencyID))

	if err := transaction.ValidateForProcessing(t); err != nil {
		p.logger.Log(ctx, log.LevelError, "transaction rejected by validation",
			log.String("transaction_id", t.ID), log.Err(err))

		result.Status = transaction.StatusError
		result.Error = transaction.ErrorTypeInvalidRequest
		p.recordFailure(ctx, t, transaction.ErrorTypeInvalidRequest)

		return result, nil
	}

	if err := p.apply(ctx, t); err != nil {
		if !isConditionOutcome(err) {
			return transaction.TaskResult{}, fmt.Errorf("process transaction %q: %w", t.ID, err)
		}

		p.logger.Log(ctx, log.LevelError, "transaction write conditions not met",
			log.String("transaction_id", t.ID), log.Err(err))

		result.Status = transaction.StatusError
		result.Error = transaction.ErrorTypeInsufficientBalance
		p.recordFailure(ctx, t, transaction.ErrorTypeInsufficientBalance)

		return result, nil
	}

	t.Status = transaction.StatusCompleted
	t.Error = transaction.ErrorTypeNone

	p.logger.Log(ctx, log.LevelInfo, "transaction completed",
		log.String("transaction_id", t.ID))

	return result, nil
}

// apply runs the slot initialization and the main atomic write. Slot
// creation is deliberately a separate earlier write: a slot-creation race
// is benign, while the transfer write must be serialized per transaction
// id by its own preconditions.
func (p *Processor) apply(ctx context.Context, t *transaction.Transaction) error {
	if _, err := p.EnsureSlot(ctx, t.RecipientID, t.CurrencyID); err != nil {
		return err
	}

	return p.writer.Write(ctx, transferMutations(t))
}

// transferMutations builds the atomic mutation set for a transfer or
// refund.
func transferMutations(t *transaction.Transaction) []store.Mutation {
	coin := wallet.CoinField(t.CurrencyID)

	mutations := []store.Mutation{
		store.Subtract(store.WalletTarget(t.PayerID), coin, t.Amount,
			store.Exists(coin),
			store.GTE(coin, t.Amount)),
		store.Add(store.WalletTarget(t.RecipientID), coin, t.Amount),
		store.Set(store.TransactionTarget(t.ID), fieldStatus, transaction.StatusCompleted,
			store.Equals(fieldStatus, transaction.StatusPending)),
	}

	if t.Type == transaction.TypeRefund {
		mutations = append(mutations,
			store.Set(store.TransactionTarget(t.RefundOriginalID()), fieldStatus, transaction.StatusRefunded,
				store.Equals(fieldStatus, transaction.StatusRefundStarted)))
	}

	return mutations
}

// recordFailure persists the ERROR outcome through a second conditional
// write. For refunds it also rolls the original back from REFUND_STARTED
// to COMPLETED so the original is not left reserved forever. Losing the
// conditional race here means another actor already set a terminal status;
// that is tolerated, logged and never retried.
func (p *Processor) recordFailure(ctx context.Context, t *transaction.Transaction, reason transaction.ErrorType) {
	t.Status = transaction.StatusError
	t.Error = reason

	target := store.TransactionTarget(t.ID)

	mutations := []store.Mutation{
		store.Set(target, fieldStatus, transaction.StatusError,
			store.Equals(fieldStatus, transaction.StatusPending)),
		store.Set(target, fieldError, reason),
	}

	if t.Type == transaction.TypeRefund && t.RefundOriginalID() != "" {
		original, err := p.transactions.Load(ctx, t.RefundOriginalID())

		switch {
		case err != nil:
			p.logger.Log(ctx, log.LevelError, "could not load refund original",
				log.String("transaction_id", t.ID),
				log.String("original_id", t.RefundOriginalID()),
				log.Err(err))
		case original.Status == transaction.StatusRefundStarted:
			mutations = append(mutations,
				store.Set(store.TransactionTarget(original.ID), fieldStatus, transaction.StatusCompleted,
					store.Equals(fieldStatus, transaction.StatusRefundStarted)))
		default:
			p.logger.Log(ctx, log.LevelWarn, "refund original not restored",
				log.String("transaction_id", t.ID),
				log.String("original_id", original.ID),
				log.String("original_status", original.Status.String()))
		}
	}

	if err := p.writer.Write(ctx, mutations); err != nil {
		if isConditionOutcome(err) {
			p.logger.Log(ctx, log.LevelWarn, "transaction was overwritten externally",
				log.String("transaction_id", t.ID), log.Err(err))

			return
		}

		p.logger.Log(ctx, log.LevelError, "failed to record transaction error status",
			log.String("transaction_id", t.ID), log.Err(err))
	}
}

// isConditionOutcome reports whether err is an expected condition-failure
// outcome rather than a store I/O failure. A missing record counts: the
// design requires accounts to pre-exist, so absence fails the attempt the
// same way an unmet balance condition does.
func isConditionOutcome(err error) bool {
	return errors.Is(err, store.ErrConditionFailed) || errors.Is(err, store.ErrNotFound)
}
