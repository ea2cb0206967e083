package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/config"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/store/mongostore"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/task"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/wallet"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	var (
		payerID     string
		recipientID string
		currencyID  string
		amount      string
		balance     string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision wallets, create a PENDING transaction and enqueue its task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), payerID, recipientID, currencyID, amount, balance)
		},
	}

	cmd.Flags().StringVar(&payerID, "payer", "payer-1", "payer owner id")
	cmd.Flags().StringVar(&recipientID, "recipient", "recipient-1", "recipient owner id")
	cmd.Flags().StringVar(&currencyID, "currency", "COIN", "currency id")
	cmd.Flags().StringVar(&amount, "amount", "5", "transfer amount")
	cmd.Flags().StringVar(&balance, "balance", "100", "initial payer balance")

	return cmd
}

func runSeed(ctx context.Context, payerID, recipientID, currencyID, amountRaw, balanceRaw string) error {
	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	balance, err := decimal.NewFromString(balanceRaw)
	if err != nil {
		return fmt.Errorf("parse balance: %w", err)
	}

	cfg := config.Load()

	records, err := mongostore.Connect(ctx, mongostore.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	}, nil)
	if err != nil {
		return err
	}
	defer records.Close(ctx)

	now := time.Now().UTC()

	wallets := records.Wallets()

	for ownerID, coins := range map[string]map[string]decimal.Decimal{
		payerID:     {currencyID: balance},
		recipientID: {currencyID: decimal.Zero},
	} {
		err := wallets.Save(ctx, &wallet.Wallet{
			OwnerID:   ownerID,
			Type:      wallet.TypeUser,
			Coins:     coins,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
	}

	t := &transaction.Transaction{
		ID:          uuid.NewString(),
		PayerID:     payerID,
		RecipientID: recipientID,
		CurrencyID:  currencyID,
		Amount:      amount,
		Type:        transaction.TypeTransfer,
		Status:      transaction.StatusPending,
		Error:       transaction.ErrorTypeNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := records.Transactions().Save(ctx, t); err != nil {
		return err
	}

	body, err := task.Task{TransactionID: t.ID}.Encode()
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(cfg.RabbitMQURI)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer channel.Close()

	if _, err := channel.QueueDeclare(cfg.TaskQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = channel.PublishWithContext(ctx, "", cfg.TaskQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}

	fmt.Printf("enqueued transaction %s (%s %s, %s -> %s)\n", t.ID, amount, currencyID, payerID, recipientID)

	return nil
}
