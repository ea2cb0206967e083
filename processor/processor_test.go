package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/store"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/store/memstore"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const currencyID = "OM_COIN"

type fixture struct {
	store     *memstore.Store
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := memstore.New()

	return &fixture{
		store:     s,
		processor: New(s.Wallets(), s.Transactions(), s, nil),
	}
}

func (f *fixture) seedWallet(t *testing.T, ownerID string, balances map[string]decimal.Decimal) {
	t.Helper()

	require.NoError(t, f.store.SaveWallet(context.Background(), &wallet.Wallet{
		OwnerID:   ownerID,
		Type:      wallet.TypeUser,
		Coins:     balances,
		CreatedAt: time.Now().UTC(),
	}))
}

func (f *fixture) seedTransaction(t *testing.T, txn *transaction.Transaction) {
	t.Helper()

	require.NoError(t, f.store.SaveTransaction(context.Background(), txn))
}

func (f *fixture) balance(t *testing.T, ownerID, currency string) decimal.Decimal {
	t.Helper()

	w, err := f.store.LoadWallet(context.Background(), ownerID)
	require.NoError(t, err)

	return w.Balance(currency)
}

func (f *fixture) storedStatus(t *testing.T, id string) transaction.Status {
	t.Helper()

	txn, err := f.store.LoadTransaction(context.Background(), id)
	require.NoError(t, err)

	return txn.Status
}

func newTransfer(payerID, recipientID string, amount int64) *transaction.Transaction {
	return &transaction.Transaction{
		ID:          uuid.NewString(),
		PayerID:     payerID,
		RecipientID: recipientID,
		CurrencyID:  currencyID,
		Amount:      decimal.NewFromInt(amount),
		Type:        transaction.TypeTransfer,
		Status:      transaction.StatusPending,
		Error:       transaction.ErrorTypeNone,
		CreatedAt:   time.Now().UTC(),
	}
}

func newRefund(original *transaction.Transaction) *transaction.Transaction {
	return &transaction.Transaction{
		ID:                   uuid.NewString(),
		PayerID:              original.RecipientID,
		RecipientID:          original.PayerID,
		CurrencyID:           original.CurrencyID,
		Amount:               original.Amount,
		Type:                 transaction.TypeRefund,
		Status:               transaction.StatusPending,
		Error:                transaction.ErrorTypeNone,
		RefundTransactionIDs: []string{original.ID},
		CreatedAt:            time.Now().UTC(),
	}
}

func TestProcessTransfer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(100)})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(100)})

	txn := newTransfer("alice", "bob", 5)
	f.seedTransaction(t, txn)

	result, err := f.processor.Process(context.Background(), txn)
	require.NoError(t, err)

	assert.Equal(t, txn.ID, result.TransactionID)
	assert.Equal(t, transaction.TypeTransfer, result.Type)
	assert.Equal(t, transaction.StatusCompleted, result.Status)
	assert.Equal(t, transaction.ErrorTypeNone, result.Error)

	assert.True(t, f.balance(t, "alice", currencyID).Equal(decimal.NewFromInt(95)))
	assert.True(t, f.balance(t, "bob", currencyID).Equal(decimal.NewFromInt(105)))
	assert.Equal(t, transaction.StatusCompleted, f.storedStatus(t, txn.ID))
}

func TestProcessTransferInsufficientBalance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.Zero})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.Zero})

	txn := newTransfer("alice", "bob", 10)
	f.seedTransaction(t, txn)

	result, err := f.processor.Process(context.Background(), txn)
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusError, result.Status)
	assert.Equal(t, transaction.ErrorTypeInsufficientBalance, result.Error)

	assert.True(t, f.balance(t, "alice", currencyID).IsZero())
	assert.True(t, f.balance(t, "bob", currencyID).IsZero())

	stored, err := f.store.LoadTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusError, stored.Status)
	assert.Equal(t, transaction.ErrorTypeInsufficientBalance, stored.Error)
}

func TestProcessTransferPayerHasNoSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(10)})

	txn := newTransfer("alice", "bob", 10)
	f.seedTransaction(t, txn)

	result, err := f.processor.Process(context.Background(), txn)
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusError, result.Status)
	assert.Equal(t, transaction.ErrorTypeInsufficientBalance, result.Error)
	assert.Equal(t, transaction.StatusError, f.storedStatus(t, txn.ID))
}

func TestProcessTransferCreatesRecipientSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(50)})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{})

	txn := newTransfer("alice", "bob", 20)
	f.seedTransaction(t, txn)

	result, err := f.processor.Process(context.Background(), txn)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusCompleted, result.Status)

	bob, err := f.store.LoadWallet(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, bob.HasSlot(currencyID))
	assert.True(t, bob.Balance(currencyID).Equal(decimal.NewFromInt(20)))
}

func TestProcessTransferNoSuchRecipient(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(50)})

	txn := newTransfer("alice", "ghost", 20)
	f.seedTransaction(t, txn)

	result, err := f.processor.Process(context.Background(), txn)
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusError, result.Status)
	assert.Equal(t, transaction.ErrorTypeInsufficientBalance, result.Error)

	// The payer must keep their full balance.
	assert.True(t, f.balance(t, "alice", currencyID).Equal(decimal.NewFromInt(50)))
	assert.Equal(t, transaction.StatusError, f.storedStatus(t, txn.ID))
}

func TestProcessTransferValidationFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	txn := newTransfer("alice", "alice", 10)
	f.seedTransaction(t, txn)

	result, err := f.processor.Process(context.Background(), txn)
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusError, result.Status)
	assert.Equal(t, transaction.ErrorTypeInvalidRequest, result.Error)

	stored, err := f.store.LoadTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusError, stored.Status)
	assert.Equal(t, transaction.ErrorTypeInvalidRequest, stored.Error)
}

func TestProcessNilTransaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.processor.Process(context.Background(), nil)
	require.Error(t, err)
}

func TestProcessCompletedTransactionIsNotReapplied(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(100)})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.Zero})

	txn := newTransfer("alice", "bob", 10)
	f.seedTransaction(t, txn)

	_, err := f.processor.Process(context.Background(), txn)
	require.NoError(t, err)

	// Redeliver the same record: the status precondition rejects the write
	// and the stored record keeps its COMPLETED status.
	redelivered, err := f.store.LoadTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	redelivered.Status = transaction.StatusPending

	result, err := f.processor.Process(context.Background(), redelivered)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusError, result.Status)

	assert.True(t, f.balance(t, "alice", currencyID).Equal(decimal.NewFromInt(90)))
	assert.True(t, f.balance(t, "bob", currencyID).Equal(decimal.NewFromInt(10)))
	assert.Equal(t, transaction.StatusCompleted, f.storedStatus(t, txn.ID))
}

func TestProcessStoreFailureLeavesRecordPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(100)})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.Zero})

	txn := newTransfer("alice", "bob", 10)
	f.seedTransaction(t, txn)

	broken := errors.New("connection reset")
	p := New(f.store.Wallets(), f.store.Transactions(), failingWriter{err: broken}, nil)

	_, err := p.Process(context.Background(), txn)
	require.ErrorIs(t, err, broken)

	assert.Equal(t, transaction.StatusPending, f.storedStatus(t, txn.ID))
	assert.True(t, f.balance(t, "alice", currencyID).Equal(decimal.NewFromInt(100)))
}

func TestProcessRefund(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(100)})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.Zero})

	original := newTransfer("alice", "bob", 30)
	f.seedTransaction(t, original)

	_, err := f.processor.Process(context.Background(), original)
	require.NoError(t, err)

	// The submitter reserves the original before enqueueing the refund.
	reserved, err := f.store.LoadTransaction(context.Background(), original.ID)
	require.NoError(t, err)
	reserved.Status = transaction.StatusRefundStarted
	require.NoError(t, f.store.SaveTransaction(context.Background(), reserved))

	refund := newRefund(original)
	f.seedTransaction(t, refund)

	result, err := f.processor.Process(context.Background(), refund)
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusCompleted, result.Status)
	assert.Equal(t, transaction.TypeRefund, result.Type)

	assert.True(t, f.balance(t, "alice", currencyID).Equal(decimal.NewFromInt(100)))
	assert.True(t, f.balance(t, "bob", currencyID).IsZero())
	assert.Equal(t, transaction.StatusCompleted, f.storedStatus(t, refund.ID))
	assert.Equal(t, transaction.StatusRefunded, f.storedStatus(t, original.ID))
}

func TestProcessRefundOriginalNotReserved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(100)})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(30)})

	original := newTransfer("alice", "bob", 30)
	original.Status = transaction.StatusCompleted
	f.seedTransaction(t, original)

	refund := newRefund(original)
	f.seedTransaction(t, refund)

	result, err := f.processor.Process(context.Background(), refund)
	require.NoError(t, err)

	// The original was never moved to REFUND_STARTED, so the refund loses
	// its precondition and nothing moves.
	assert.Equal(t, transaction.StatusError, result.Status)
	assert.True(t, f.balance(t, "alice", currencyID).Equal(decimal.NewFromInt(100)))
	assert.True(t, f.balance(t, "bob", currencyID).Equal(decimal.NewFromInt(30)))
	assert.Equal(t, transaction.StatusError, f.storedStatus(t, refund.ID))
	assert.Equal(t, transaction.StatusCompleted, f.storedStatus(t, original.ID))
}

func TestProcessRefundInsufficientBalanceRestoresOriginal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.Zero})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(5)})

	// Bob received 30 once but has since spent most of it. The refund of
	// the full amount cannot be honored, and the original must not stay
	// reserved.
	original := newTransfer("alice", "bob", 30)
	original.Status = transaction.StatusRefundStarted
	f.seedTransaction(t, original)

	refund := newRefund(original)
	f.seedTransaction(t, refund)

	result, err := f.processor.Process(context.Background(), refund)
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusError, result.Status)
	assert.Equal(t, transaction.ErrorTypeInsufficientBalance, result.Error)

	assert.True(t, f.balance(t, "bob", currencyID).Equal(decimal.NewFromInt(5)))
	assert.Equal(t, transaction.StatusError, f.storedStatus(t, refund.ID))
	assert.Equal(t, transaction.StatusCompleted, f.storedStatus(t, original.ID))
}

func TestProcessConcurrentTransfersNeverOverdraw(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(100)})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.Zero})

	const attempts = 5

	transfers := make([]*transaction.Transaction, attempts)
	for i := range transfers {
		transfers[i] = newTransfer("alice", "bob", 60)
		f.seedTransaction(t, transfers[i])
	}

	var wg sync.WaitGroup

	results := make([]transaction.TaskResult, attempts)

	for i := range transfers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			result, err := f.processor.Process(context.Background(), transfers[i])
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}

	wg.Wait()

	completed := 0
	for _, result := range results {
		if result.Status == transaction.StatusCompleted {
			completed++
		}
	}

	assert.Equal(t, 1, completed)
	assert.True(t, f.balance(t, "alice", currencyID).Equal(decimal.NewFromInt(40)))
	assert.True(t, f.balance(t, "bob", currencyID).Equal(decimal.NewFromInt(60)))
}

func TestProcessConcurrentRefundsOfOneOriginal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{currencyID: decimal.Zero})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{currencyID: decimal.NewFromInt(30)})

	original := newTransfer("alice", "bob", 30)
	original.Status = transaction.StatusRefundStarted
	f.seedTransaction(t, original)

	const attempts = 4

	refunds := make([]*transaction.Transaction, attempts)
	for i := range refunds {
		refunds[i] = newRefund(original)
		f.seedTransaction(t, refunds[i])
	}

	var wg sync.WaitGroup

	results := make([]transaction.TaskResult, attempts)

	for i := range refunds {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			result, err := f.processor.Process(context.Background(), refunds[i])
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}

	wg.Wait()

	completed := 0
	for _, result := range results {
		if result.Status == transaction.StatusCompleted {
			completed++
		}
	}

	// The REFUND_STARTED precondition on the original admits exactly one
	// refund; the rest fail without restoring the already-refunded
	// original.
	assert.Equal(t, 1, completed)
	assert.True(t, f.balance(t, "alice", currencyID).Equal(decimal.NewFromInt(30)))
	assert.True(t, f.balance(t, "bob", currencyID).IsZero())
	assert.Equal(t, transaction.StatusRefunded, f.storedStatus(t, original.ID))
}

func TestProcessConcurrentTransfersAcrossCurrencies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{
		"OM_COIN": decimal.NewFromInt(100),
		"GEM":     decimal.NewFromInt(100),
	})
	f.seedWallet(t, "bob", map[string]decimal.Decimal{})

	currencies := []string{"OM_COIN", "GEM"}

	var wg sync.WaitGroup

	for _, currency := range currencies {
		for i := 0; i < 10; i++ {
			txn := newTransfer("alice", "bob", 10)
			txn.CurrencyID = currency
			f.seedTransaction(t, txn)

			wg.Add(1)

			go func(txn *transaction.Transaction) {
				defer wg.Done()

				_, err := f.processor.Process(context.Background(), txn)
				assert.NoError(t, err)
			}(txn)
		}
	}

	wg.Wait()

	for _, currency := range currencies {
		assert.True(t, f.balance(t, "alice", currency).IsZero(), currency)
		assert.True(t, f.balance(t, "bob", currency).Equal(decimal.NewFromInt(100)), currency)
	}
}

func TestEnsureSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedWallet(t, "alice", map[string]decimal.Decimal{})

	created, err := f.processor.EnsureSlot(context.Background(), "alice", currencyID)
	require.NoError(t, err)
	assert.True(t, created)

	// A second call is a no-op, not an error.
	created, err = f.processor.EnsureSlot(context.Background(), "alice", currencyID)
	require.NoError(t, err)
	assert.False(t, created)

	w, err := f.store.LoadWallet(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, w.HasSlot(currencyID))
	assert.True(t, w.Balance(currencyID).IsZero())
}

func TestEnsureSlotMissingWallet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.processor.EnsureSlot(context.Background(), "ghost", currencyID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

type failingWriter struct{ err error }

func (w failingWriter) Write(_ context.Context, _ []store.Mutation) error {
	return w.err
}
