package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/log"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/store"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/wallet"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

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
	var doc walletDoc

	err := v.s.wallets.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("wallet %q: %w", ownerID, store.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("load wallet %q: %w", ownerID, err)
	}

	return doc.toWallet()
}

func (v walletView) Save(ctx context.Context, w *wallet.Wallet) error {
	doc, err := toWalletDoc(w)
	if err != nil {
		return err
	}

	_, err = v.s.wallets.ReplaceOne(ctx, bson.M{"_id": w.OwnerID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save wallet %q: %w", w.OwnerID, err)
	}

	return nil
}

func (v walletView) ConditionalUpdate(ctx context.Context, m store.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if m.Target.Kind != store.KindWallet {
		return fmt.Errorf("%w: conditional update targets %q", store.ErrInvalidMutation, m.Target.Kind)
	}

	filter, update, err := mutationToMongo(m)
	if err != nil {
		return err
	}

	result, err := v.s.wallets.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("conditional update wallet %q: %w", m.Target.Key, err)
	}

	if result.MatchedCount == 0 {
		return v.s.classifyUnmatched(ctx, m.Target)
	}

	return nil
}

type transactionView struct{ s *Store }

func (v transactionView) Load(ctx context.Context, id string) (*transaction.Transaction, error) {
	var doc transactionDoc

	err := v.s.transactions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("transaction %q: %w", id, store.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("load transaction %q: %w", id, err)
	}

	return doc.toTransaction()
}

func (v transactionView) BatchLoad(ctx context.Context, ids []string) ([]*transaction.Transaction, error) {
	cursor, err := v.s.transactions.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("batch load transactions: %w", err)
	}
	defer cursor.Close(ctx)

	byID := make(map[string]*transaction.Transaction, len(ids))

	for cursor.Next(ctx) {
		var doc transactionDoc

		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("batch load transactions: %w", err)
		}

		t, err := doc.toTransaction()
		if err != nil {
			return nil, err
		}

		byID[t.ID] = t
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("batch load transactions: %w", err)
	}

	// Preserve request order; missing ids are skipped.
	loaded := make([]*transaction.Transaction, 0, len(byID))

	for _, id := range ids {
		if t, ok := byID[id]; ok {
			loaded = append(loaded, t)
		}
	}

	return loaded, nil
}

func (v transactionView) Save(ctx context.Context, t *transaction.Transaction) error {
	doc, err := toTransactionDoc(t)
	if err != nil {
		return err
	}

	_, err = v.s.transactions.ReplaceOne(ctx, bson.M{"_id": t.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save transaction %q: %w", t.ID, err)
	}

	return nil
}

// Write applies the mutation set inside a session transaction. The first
// update whose filter matches nothing aborts the transaction, so either
// every mutation applies or none does. Transient write conflicts between
// concurrent transactions are retried by the driver; a genuine unmet
// precondition surfaces as store.ErrConditionFailed.
func (s *Store) Write(ctx context.Context, mutations []store.Mutation) error {
	for _, m := range mutations {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		for _, m := range mutations {
			if err := s.applyInSession(sc, m); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) || errors.Is(err, store.ErrNotFound) {
			return err
		}

		return fmt.Errorf("transact write: %w", err)
	}

	return nil
}

func (s *Store) applyInSession(ctx mongo.SessionContext, m store.Mutation) error {
	filter, update, err := mutationToMongo(m)
	if err != nil {
		return err
	}

	collection := s.collectionFor(m.Target.Kind)

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update %s %q: %w", m.Target.Kind, m.Target.Key, err)
	}

	if result.MatchedCount == 0 {
		return s.classifyUnmatched(ctx, m.Target)
	}

	return nil
}

func (s *Store) collectionFor(kind store.RecordKind) *mongo.Collection {
	if kind == store.KindTransaction {
		return s.transactions
	}

	return s.wallets
}

// classifyUnmatched distinguishes a record that does not exist from one
// whose preconditions did not hold. The probe is made outside any
// precondition, so a false ErrNotFound can only happen if the record was
// deleted concurrently, which the data model rules out (records are never
// deleted).
func (s *Store) classifyUnmatched(ctx context.Context, target store.Target) error {
	count, err := s.collectionFor(target.Kind).CountDocuments(ctx, bson.M{"_id": target.Key})
	if err != nil {
		s.logger.Log(ctx, log.LevelWarn, "could not classify unmatched update",
			log.String("kind", string(target.Kind)), log.String("key", target.Key), log.Err(err))

		return fmt.Errorf("%s %q: %w", target.Kind, target.Key, store.ErrConditionFailed)
	}

	if count == 0 {
		return fmt.Errorf("%s %q: %w", target.Kind, target.Key, store.ErrNotFound)
	}

	return fmt.Errorf("%s %q: %w", target.Kind, target.Key, store.ErrConditionFailed)
}

// mutationToMongo renders a typed mutation into an update filter and
// document. Preconditions become filter clauses, so the conditional write
// is a single round trip.
func mutationToMongo(m store.Mutation) (bson.M, bson.M, error) {
	filter := bson.M{"_id": m.Target.Key}

	for _, p := range m.Preconditions {
		switch p.Op {
		case store.PredicateExists:
			mergeFieldClause(filter, p.Field, bson.M{"$exists": true})
		case store.PredicateNotExists:
			mergeFieldClause(filter, p.Field, bson.M{"$exists": false})
		case store.PredicateEquals:
			value, err := bsonValue(p.Value)
			if err != nil {
				return nil, nil, err
			}

			filter[p.Field] = value
		case store.PredicateGTE:
			bound, ok := p.Value.(decimal.Decimal)
			if !ok {
				return nil, nil, fmt.Errorf("%w: GTE bound for field %q is not a decimal", store.ErrInvalidMutation, p.Field)
			}

			converted, err := toDecimal128(bound)
			if err != nil {
				return nil, nil, err
			}

			mergeFieldClause(filter, p.Field, bson.M{"$gte": converted})
		default:
			return nil, nil, fmt.Errorf("%w: unknown predicate op %q", store.ErrInvalidMutation, p.Op)
		}
	}

	update := bson.M{"$currentDate": bson.M{"updatedAt": true}}

	switch m.Op {
	case store.OpAdd, store.OpSubtract:
		amount, ok := m.Value.(decimal.Decimal)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s value for field %q is not a decimal", store.ErrInvalidMutation, m.Op, m.Field)
		}

		if m.Op == store.OpSubtract {
			amount = amount.Neg()
		}

		converted, err := toDecimal128(amount)
		if err != nil {
			return nil, nil, err
		}

		update["$inc"] = bson.M{m.Field: converted}
	case store.OpSet:
		value, err := bsonValue(m.Value)
		if err != nil {
			return nil, nil, err
		}

		update["$set"] = bson.M{m.Field: value}
	default:
		return nil, nil, fmt.Errorf("%w: unknown mutation op %q", store.ErrInvalidMutation, m.Op)
	}

	return filter, update, nil
}

// mergeFieldClause combines operator clauses for a field already present
// in the filter (e.g. $exists and $gte on the same balance slot).
func mergeFieldClause(filter bson.M, field string, clause bson.M) {
	existing, ok := filter[field].(bson.M)
	if !ok {
		filter[field] = clause
		return
	}

	for op, value := range clause {
		existing[op] = value
	}
}
