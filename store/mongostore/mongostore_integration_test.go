//go:build integration

package mongostore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/store"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
)

const integrationDatabase = "integration_test_db"

// setupMongoContainer starts a disposable single-node replica set. Session
// transactions require a replica set, a standalone mongod rejects them.
func setupMongoContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := tcmongo.Run(ctx,
		"mongo:7",
		tcmongo.WithReplicaSet("rs0"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Waiting for connections").
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	return endpoint
}

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()

	s, err := Connect(ctx, Config{
		URI:      setupMongoContainer(t),
		Database: integrationDatabase,
	}, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close(ctx))
	})

	return s
}

func seedIntegrationWallet(t *testing.T, s *Store, ownerID string, balance decimal.Decimal) {
	t.Helper()

	require.NoError(t, s.Wallets().Save(context.Background(), &wallet.Wallet{
		OwnerID:   ownerID,
		Type:      wallet.TypeUser,
		Coins:     map[string]decimal.Decimal{"OM_COIN": balance},
		CreatedAt: time.Now().UTC(),
	}))
}

func TestIntegration_WalletRoundTrip(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	seedIntegrationWallet(t, s, "alice", decimal.RequireFromString("100.50"))

	loaded, err := s.Wallets().Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.OwnerID)
	assert.True(t, loaded.Balance("OM_COIN").Equal(decimal.RequireFromString("100.50")))

	_, err = s.Wallets().Load(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestIntegration_ConditionalSlotCreation(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	seedIntegrationWallet(t, s, "alice", decimal.NewFromInt(10))

	coin := wallet.CoinField("GEM")
	create := store.Set(store.WalletTarget("alice"), coin, decimal.Zero, store.NotExists(coin))

	require.NoError(t, s.Wallets().ConditionalUpdate(ctx, create))
	require.ErrorIs(t, s.Wallets().ConditionalUpdate(ctx, create), store.ErrConditionFailed)

	err := s.Wallets().ConditionalUpdate(ctx,
		store.Set(store.WalletTarget("ghost"), coin, decimal.Zero, store.NotExists(coin)))
	require.ErrorIs(t, err, store.ErrNotFound)

	loaded, err := s.Wallets().Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, loaded.HasSlot("GEM"))
	assert.True(t, loaded.Balance("GEM").IsZero())
}

func TestIntegration_TransactWriteAppliesAtomically(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	seedIntegrationWallet(t, s, "alice", decimal.NewFromInt(100))
	seedIntegrationWallet(t, s, "bob", decimal.Zero)

	require.NoError(t, s.Transactions().Save(ctx, &transaction.Transaction{
		ID:     "txn-1",
		Status: transaction.StatusPending,
		Amount: decimal.NewFromInt(40),
	}))

	coin := wallet.CoinField("OM_COIN")
	amount := decimal.NewFromInt(40)

	err := s.Write(ctx, []store.Mutation{
		store.Subtract(store.WalletTarget("alice"), coin, amount,
			store.Exists(coin), store.GTE(coin, amount)),
		store.Add(store.WalletTarget("bob"), coin, amount),
		store.Set(store.TransactionTarget("txn-1"), "status", transaction.StatusCompleted,
			store.Equals("status", transaction.StatusPending)),
	})
	require.NoError(t, err)

	alice, err := s.Wallets().Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance("OM_COIN").Equal(decimal.NewFromInt(60)))

	bob, err := s.Wallets().Load(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bob.Balance("OM_COIN").Equal(decimal.NewFromInt(40)))

	txn, err := s.Transactions().Load(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, txn.Status)
}

func TestIntegration_TransactWriteRollsBackOnFailedCondition(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	seedIntegrationWallet(t, s, "alice", decimal.NewFromInt(10))
	seedIntegrationWallet(t, s, "bob", decimal.Zero)

	require.NoError(t, s.Transactions().Save(ctx, &transaction.Transaction{
		ID:     "txn-1",
		Status: transaction.StatusPending,
		Amount: decimal.NewFromInt(40),
	}))

	coin := wallet.CoinField("OM_COIN")
	amount := decimal.NewFromInt(40)

	// The debit precondition fails last-ish in the set; the earlier credit
	// must be rolled back with the session transaction.
	err := s.Write(ctx, []store.Mutation{
		store.Add(store.WalletTarget("bob"), coin, amount),
		store.Subtract(store.WalletTarget("alice"), coin, amount,
			store.Exists(coin), store.GTE(coin, amount)),
		store.Set(store.TransactionTarget("txn-1"), "status", transaction.StatusCompleted,
			store.Equals("status", transaction.StatusPending)),
	})
	require.ErrorIs(t, err, store.ErrConditionFailed)

	alice, err := s.Wallets().Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance("OM_COIN").Equal(decimal.NewFromInt(10)))

	bob, err := s.Wallets().Load(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bob.Balance("OM_COIN").IsZero())

	txn, err := s.Transactions().Load(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, txn.Status)
}

func TestIntegration_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	seedIntegrationWallet(t, s, "alice", decimal.NewFromInt(100))

	coin := wallet.CoinField("OM_COIN")
	amount := decimal.NewFromInt(60)

	const attempts = 6

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := s.Write(ctx, []store.Mutation{
				store.Subtract(store.WalletTarget("alice"), coin, amount,
					store.Exists(coin), store.GTE(coin, amount)),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)

	alice, err := s.Wallets().Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance("OM_COIN").Equal(decimal.NewFromInt(40)))
}

func TestIntegration_TransactionBatchLoad(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	for _, id := range []string{"txn-1", "txn-2"} {
		require.NoError(t, s.Transactions().Save(ctx, &transaction.Transaction{
			ID:     id,
			Status: transaction.StatusPending,
			Amount: decimal.NewFromInt(1),
		}))
	}

	loaded, err := s.Transactions().BatchLoad(ctx, []string{"txn-2", "missing", "txn-1"})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "txn-2", loaded[0].ID)
	assert.Equal(t, "txn-1", loaded[1].ID)
}
