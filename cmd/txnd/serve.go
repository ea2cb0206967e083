package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/config"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/log"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/processor"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/store/mongostore"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/task"
	zaplog "github.com/miska12345/OpenMarket-Transaction-Lambda/zap"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume and process transaction tasks until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg := config.Load()

	logger, _, err := zaplog.New(zaplog.Config{
		Environment: zaplog.Environment(cfg.Environment),
		Level:       cfg.LogLevel,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := mongostore.Connect(ctx, mongostore.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	}, logger)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := records.Close(closeCtx); err != nil {
			logger.Log(closeCtx, log.LevelError, "failed to close mongodb client", log.Err(err))
		}
	}()

	var publisher task.ResultPublisher

	if cfg.PublishResults {
		conn, err := amqp.Dial(cfg.RabbitMQURI)
		if err != nil {
			return fmt.Errorf("dial broker for result publishing: %w", err)
		}
		defer conn.Close()

		channel, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("open result publishing channel: %w", err)
		}
		defer channel.Close()

		if err := channel.ExchangeDeclare(cfg.ResultExchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare result exchange: %w", err)
		}

		publisher = task.NewPublisher(channel, cfg.ResultExchange, cfg.ResultRoutingKey, logger)
	}

	engine := processor.New(records.Wallets(), records.Transactions(), records, logger)
	handler := task.NewHandler(engine, records.Transactions(), publisher, logger)
	consumer := task.NewConsumer(cfg.RabbitMQURI, cfg.TaskQueue, handler, logger)

	logger.Log(ctx, log.LevelInfo, "transaction worker starting",
		log.String("queue", cfg.TaskQueue),
		log.Bool("publish_results", cfg.PublishResults))

	err = consumer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Log(context.Background(), log.LevelInfo, "transaction worker stopped")

	return nil
}
