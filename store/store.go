package store

import (
	"context"
	"errors"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/wallet"
)

var (
	// ErrConditionFailed is returned when a conditional write's
	// precondition set was not met. The record set is unchanged.
	ErrConditionFailed = errors.New("store: condition failed")

	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrInvalidMutation is returned when a mutation is structurally
	// unusable before any write is attempted.
	ErrInvalidMutation = errors.New("store: invalid mutation")
)

// WalletStore holds account ledger records and exposes the conditional
// single-record update used for slot initialization.
type WalletStore interface {
	Load(ctx context.Context, ownerID string) (*wallet.Wallet, error)
	Save(ctx context.Context, w *wallet.Wallet) error

	// ConditionalUpdate applies one mutation to a wallet record. It
	// returns ErrConditionFailed when a precondition does not hold,
	// ErrNotFound when the wallet does not exist, and a wrapped I/O
	// error otherwise.
	ConditionalUpdate(ctx context.Context, m Mutation) error
}

// TransactionStore holds transaction records.
type TransactionStore interface {
	Load(ctx context.Context, id string) (*transaction.Transaction, error)
	BatchLoad(ctx context.Context, ids []string) ([]*transaction.Transaction, error)
	Save(ctx context.Context, t *transaction.Transaction) error
}

// TransactWriter applies a set of conditional mutations across wallet and
// transaction records as a single all-or-nothing write. If any precondition
// in the set does not hold, no mutation takes effect and the call returns
// ErrConditionFailed. The writer does not report which precondition broke.
type TransactWriter interface {
	Write(ctx context.Context, mutations []Mutation) error
}
