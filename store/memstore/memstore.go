package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/store"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/wallet"
	"github.com/shopspring/decimal"
)

// Store keeps wallet and transaction records in process memory. It
// implements store.WalletStore, store.TransactionStore and
// store.TransactWriter.
type Store struct {
	mu           sync.Mutex
	wallets      map[string]*wallet.Wallet
	transactions map[string]*transaction.Transaction
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		wallets:      make(map[string]*wallet.Wallet),
		transactions: make(map[string]*transaction.Transaction),
	}
}

// Wallets returns the store.WalletStore view of the store.
//
//nolint:ireturn
func (s *Store) Wallets() store.WalletStore {
	return walletView{s}
}

// Transactions returns the store.TransactionStore view of the store.
//
//nolint:ireturn
func (s *Store) Transactions() store.TransactionStore {
	return transactionView{s}
}

type walletView struct{ s *Store }

func (v walletView) Load(ctx context.Context, ownerID string) (*wallet.Wallet, error) {
	return v.s.LoadWallet(ctx, ownerID)
}

func (v walletView) Save(ctx context.Context, w *wallet.Wallet) error {
	return v.s.SaveWallet(ctx, w)
}

func (v walletView) ConditionalUpdate(ctx context.Context, m store.Mutation) error {
	return v.s.ConditionalUpdate(ctx, m)
}

type transactionView struct{ s *Store }

func (v transactionView) Load(ctx context.Context, id string) (*transaction.Transaction, error) {
	return v.s.LoadTransaction(ctx, id)
}

func (v transactionView) BatchLoad(ctx context.Context, ids []string) ([]*transaction.Transaction, error) {
	return v.s.BatchLoadTransactions(ctx, ids)
}

func (v transactionView) Save(ctx context.Context, t *transaction.Transaction) error {
	return v.s.SaveTransaction(ctx, t)
}

// LoadWallet returns a copy of the wallet owned by ownerID.
func (s *Store) LoadWallet(ctx context.Context, ownerID string) (*wallet.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[ownerID]
	if !ok {
		return nil, fmt.Errorf("wallet %q: %w", ownerID, store.ErrNotFound)
	}

	return copyWallet(w), nil
}

// SaveWallet stores a copy of the wallet, overwriting any existing record.
func (s *Store) SaveWallet(ctx context.Context, w *wallet.Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyWallet(w)
	stored.UpdatedAt = time.Now().UTC()
	s.wallets[w.OwnerID] = stored

	return nil
}

// ConditionalUpdate applies one wallet mutation under the store lock.
func (s *Store) ConditionalUpdate(ctx context.Context, m store.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.Validate(); err != nil {
		return err
	}

	if m.Target.Kind != store.KindWallet {
		return fmt.Errorf("%w: conditional update targets %q", store.ErrInvalidMutation, m.Target.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(m); err != nil {
		return err
	}

	return s.apply(m)
}

// Write applies the mutation set all-or-nothing: every precondition is
// checked against current state before the first mutation is applied.
func (s *Store) Write(ctx context.Context, mutations []store.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, m := range mutations {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range mutations {
		if err := s.check(m); err != nil {
			return err
		}
	}

	for _, m := range mutations {
		if err := s.apply(m); err != nil {
			return err
		}
	}

	return nil
}

// LoadTransaction returns a copy of the transaction record.
func (s *Store) LoadTransaction(ctx context.Context, id string) (*transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %q: %w", id, store.ErrNotFound)
	}

	return copyTransaction(t), nil
}

// BatchLoadTransactions returns copies of the records that exist, in the
// order requested. Missing ids are skipped.
func (s *Store) BatchLoadTransactions(ctx context.Context, ids []string) ([]*transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := make([]*transaction.Transaction, 0, len(ids))

	for _, id := range ids {
		if t, ok := s.transactions[id]; ok {
			loaded = append(loaded, copyTransaction(t))
		}
	}

	return loaded, nil
}

// SaveTransaction stores a copy of the record, overwriting any existing one.
func (s *Store) SaveTransaction(ctx context.Context, t *transaction.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyTransaction(t)
	stored.UpdatedAt = time.Now().UTC()
	s.transactions[t.ID] = stored

	return nil
}

// check evaluates every precondition of m against current state. Caller
// holds the lock.
func (s *Store) check(m store.Mutation) error {
	recordExists := s.recordExists(m.Target)

	if !recordExists {
		return fmt.Errorf("%s %q: %w", m.Target.Kind, m.Target.Key, store.ErrNotFound)
	}

	for _, p := range m.Preconditions {
		value, fieldExists := s.fieldValue(m.Target, p.Field)

		ok, err := evaluate(p, value, fieldExists)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%s %q field %q: %w", m.Target.Kind, m.Target.Key, p.Field, store.ErrConditionFailed)
		}
	}

	return nil
}

func (s *Store) recordExists(target store.Target) bool {
	switch target.Kind {
	case store.KindWallet:
		_, ok := s.wallets[target.Key]
		return ok
	case store.KindTransaction:
		_, ok := s.transactions[target.Key]
		return ok
	default:
		return false
	}
}

func (s *Store) fieldValue(target store.Target, field string) (any, bool) {
	switch target.Kind {
	case store.KindWallet:
		w, ok := s.wallets[target.Key]
		if !ok {
			return nil, false
		}

		currencyID, isCoin := strings.CutPrefix(field, wallet.CoinsField+".")
		if !isCoin {
			return nil, false
		}

		balance, ok := w.Coins[currencyID]

		return balance, ok
	case store.KindTransaction:
		t, ok := s.transactions[target.Key]
		if !ok {
			return nil, false
		}

		switch field {
		case "status":
			return t.Status, true
		case "error":
			return t.Error, true
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}

func evaluate(p store.Predicate, value any, fieldExists bool) (bool, error) {
	switch p.Op {
	case store.PredicateExists:
		return fieldExists, nil
	case store.PredicateNotExists:
		return !fieldExists, nil
	case store.PredicateEquals:
		if !fieldExists {
			return false, nil
		}

		return equal(value, p.Value), nil
	case store.PredicateGTE:
		if !fieldExists {
			return false, nil
		}

		current, ok := value.(decimal.Decimal)
		if !ok {
			return false, fmt.Errorf("%w: GTE on non-numeric field %q", store.ErrInvalidMutation, p.Field)
		}

		bound, ok := p.Value.(decimal.Decimal)
		if !ok {
			return false, fmt.Errorf("%w: GTE bound for field %q is not a decimal", store.ErrInvalidMutation, p.Field)
		}

		return current.GreaterThanOrEqual(bound), nil
	default:
		return false, fmt.Errorf("%w: unknown predicate op %q", store.ErrInvalidMutation, p.Op)
	}
}

func equal(a, b any) bool {
	if ad, ok := a.(decimal.Decimal); ok {
		if bd, ok := b.(decimal.Decimal); ok {
			return ad.Equal(bd)
		}

		return false
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

// apply writes the mutation. Caller holds the lock and has already
// validated preconditions.
func (s *Store) apply(m store.Mutation) error {
	now := time.Now().UTC()

	switch m.Target.Kind {
	case store.KindWallet:
		w := s.wallets[m.Target.Key]

		currencyID, isCoin := strings.CutPrefix(m.Field, wallet.CoinsField+".")
		if !isCoin {
			return fmt.Errorf("%w: unsupported wallet field %q", store.ErrInvalidMutation, m.Field)
		}

		amount, ok := m.Value.(decimal.Decimal)
		if !ok {
			return fmt.Errorf("%w: wallet mutation value for %q is not a decimal", store.ErrInvalidMutation, m.Field)
		}

		if w.Coins == nil {
			w.Coins = make(map[string]decimal.Decimal)
		}

		switch m.Op {
		case store.OpAdd:
			w.Coins[currencyID] = w.Coins[currencyID].Add(amount)
		case store.OpSubtract:
			w.Coins[currencyID] = w.Coins[currencyID].Sub(amount)
		case store.OpSet:
			w.Coins[currencyID] = amount
		}

		w.UpdatedAt = now

		return nil
	case store.KindTransaction:
		t := s.transactions[m.Target.Key]

		if m.Op != store.OpSet {
			return fmt.Errorf("%w: transaction fields only support set", store.ErrInvalidMutation)
		}

		switch m.Field {
		case "status":
			t.Status = transaction.Status(fmt.Sprint(m.Value))
		case "error":
			t.Error = transaction.ErrorType(fmt.Sprint(m.Value))
		default:
			return fmt.Errorf("%w: unsupported transaction field %q", store.ErrInvalidMutation, m.Field)
		}

		t.UpdatedAt = now

		return nil
	default:
		return fmt.Errorf("%w: unknown target kind %q", store.ErrInvalidMutation, m.Target.Kind)
	}
}

func copyWallet(w *wallet.Wallet) *wallet.Wallet {
	copied := *w
	copied.Coins = make(map[string]decimal.Decimal, len(w.Coins))

	for currencyID, balance := range w.Coins {
		copied.Coins[currencyID] = balance
	}

	return &copied
}

func copyTransaction(t *transaction.Transaction) *transaction.Transaction {
	copied := *t
	copied.RefundTransactionIDs = append([]string(nil), t.RefundTransactionIDs...)

	return &copied
}
