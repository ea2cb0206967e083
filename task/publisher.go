package task

import (
	"context"
	"fmt"
	"time"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/log"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	amqp "github.com/rabbitmq/amqp091-go"
)

// publishChannel is the subset of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher publishes processed-result batches to a RabbitMQ exchange.
type Publisher struct {
	channel    publishChannel
	exchange   string
	routingKey string
	logger     log.Logger
}

// NewPublisher creates a Publisher on an open channel. A nil logger is
// replaced with a no-op logger.
func NewPublisher(channel publishChannel, exchange, routingKey string, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Publisher{
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}
}

// PublishResults publishes the JSON-encoded result batch.
func (p *Publisher) PublishResults(ctx context.Context, results []transaction.TaskResult) error {
	body, err := EncodeResults(results)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish results to exchange %q: %w", p.exchange, err)
	}

	p.logger.Log(ctx, log.LevelInfo, "published task results",
		log.String("exchange", p.exchange), log.Int("count", len(results)))

	return nil
}
