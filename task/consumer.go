package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/backoff"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// consumerPrefetch bounds unacknowledged deliveries per consumer.
	consumerPrefetch = 16

	redialBackoffBase = time.Second
	redialMaxAttempt  = 5
)

// ErrChannelClosed is returned internally when the broker closes the
// delivery channel; the consumer redials with backoff.
var ErrChannelClosed = errors.New("task: delivery channel closed")

// Consumer drains transaction tasks from a RabbitMQ queue and hands them
// to a Handler one delivery at a time. Each delivery is acknowledged after
// processing; a delivery whose processing hit a store I/O failure is
// negatively acknowledged with requeue so the broker decides redelivery.
type Consumer struct {
	uri     string
	queue   string
	handler *Handler
	logger  log.Logger

	dialer func(string) (*amqp.Connection, error)
}

// NewConsumer creates a Consumer for the given broker URI and queue. A nil
// logger is replaced with a no-op logger.
func NewConsumer(uri, queue string, handler *Handler, logger log.Logger) *Consumer {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Consumer{
		uri:     uri,
		queue:   queue,
		handler: handler,
		logger:  logger,
		dialer:  amqp.Dial,
	}
}

// Run consumes until the context is canceled, redialing the broker with
// jittered exponential backoff on connection loss.
func (c *Consumer) Run(ctx context.Context) error {
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.consume(ctx)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ctx.Err()
		}

		c.logger.Log(ctx, log.LevelError, "consumer disconnected",
			log.String("queue", c.queue), log.Int("attempt", attempt), log.Err(err))

		if err := backoff.SleepWithContext(ctx, backoff.ExponentialWithJitter(redialBackoffBase, attempt)); err != nil {
			return err
		}

		if attempt < redialMaxAttempt {
			attempt++
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := c.dialer(c.uri)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer channel.Close()

	if _, err := channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", c.queue, err)
	}

	if err := channel.Qos(consumerPrefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue %q: %w", c.queue, err)
	}

	c.logger.Log(ctx, log.LevelInfo, "consuming transaction tasks", log.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return ErrChannelClosed
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	_, err := c.handler.Handle(ctx, [][]byte{delivery.Body})
	if err != nil {
		// The transaction is still PENDING after an I/O failure, so a
		// redelivered task can be re-processed safely.
		c.logger.Log(ctx, log.LevelError, "task processing failed, requeueing", log.Err(err))

		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Log(ctx, log.LevelError, "failed to nack delivery", log.Err(nackErr))
		}

		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Log(ctx, log.LevelError, "failed to ack delivery", log.Err(ackErr))
	}
}
