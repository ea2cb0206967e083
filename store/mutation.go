package store

import "fmt"

// RecordKind identifies which record family a mutation targets.
type RecordKind string

const (
	// KindWallet targets an account ledger record.
	KindWallet RecordKind = "wallet"
	// KindTransaction targets a transaction record.
	KindTransaction RecordKind = "transaction"
)

// Target identifies a single record by kind and key.
type Target struct {
	Kind RecordKind
	Key  string
}

// WalletTarget returns a target for the wallet owned by ownerID.
func WalletTarget(ownerID string) Target {
	return Target{Kind: KindWallet, Key: ownerID}
}

// TransactionTarget returns a target for a transaction record.
func TransactionTarget(transactionID string) Target {
	return Target{Kind: KindTransaction, Key: transactionID}
}

// PredicateOp is the comparison a precondition applies to a record field.
type PredicateOp string

const (
	// PredicateExists requires the field to be present.
	PredicateExists PredicateOp = "exists"
	// PredicateNotExists requires the field to be absent.
	PredicateNotExists PredicateOp = "not_exists"
	// PredicateEquals requires the field to equal Value.
	PredicateEquals PredicateOp = "equals"
	// PredicateGTE requires the field to be numerically >= Value.
	PredicateGTE PredicateOp = "gte"
)

// Predicate is one precondition evaluated against the record's current
// state at write time.
type Predicate struct {
	Field string
	Op    PredicateOp
	Value any
}

// Exists builds a field-presence predicate.
func Exists(field string) Predicate {
	return Predicate{Field: field, Op: PredicateExists}
}

// NotExists builds a field-absence predicate.
func NotExists(field string) Predicate {
	return Predicate{Field: field, Op: PredicateNotExists}
}

// Equals builds an equality predicate.
func Equals(field string, value any) Predicate {
	return Predicate{Field: field, Op: PredicateEquals, Value: value}
}

// GTE builds a greater-or-equal predicate.
func GTE(field string, value any) Predicate {
	return Predicate{Field: field, Op: PredicateGTE, Value: value}
}

// MutationOp is the write a mutation applies to its field.
type MutationOp string

const (
	// OpAdd increments a numeric field by Value.
	OpAdd MutationOp = "add"
	// OpSubtract decrements a numeric field by Value.
	OpSubtract MutationOp = "subtract"
	// OpSet assigns Value to the field.
	OpSet MutationOp = "set"
)

// Mutation is a single conditional write against one record field. The
// write applies only if every precondition holds at commit time.
type Mutation struct {
	Target        Target
	Field         string
	Op            MutationOp
	Value         any
	Preconditions []Predicate
}

// Add builds an increment mutation.
func Add(target Target, field string, value any, preconditions ...Predicate) Mutation {
	return Mutation{Target: target, Field: field, Op: OpAdd, Value: value, Preconditions: preconditions}
}

// Subtract builds a decrement mutation.
func Subtract(target Target, field string, value any, preconditions ...Predicate) Mutation {
	return Mutation{Target: target, Field: field, Op: OpSubtract, Value: value, Preconditions: preconditions}
}

// Set builds an assignment mutation.
func Set(target Target, field string, value any, preconditions ...Predicate) Mutation {
	return Mutation{Target: target, Field: field, Op: OpSet, Value: value, Preconditions: preconditions}
}

// Validate reports whether the mutation is structurally usable.
func (m Mutation) Validate() error {
	if m.Target.Key == "" {
		return fmt.Errorf("%w: mutation target key is empty", ErrInvalidMutation)
	}

	switch m.Target.Kind {
	case KindWallet, KindTransaction:
	default:
		return fmt.Errorf("%w: unknown target kind %q", ErrInvalidMutation, m.Target.Kind)
	}

	if m.Field == "" {
		return fmt.Errorf("%w: mutation field is empty", ErrInvalidMutation)
	}

	switch m.Op {
	case OpAdd, OpSubtract, OpSet:
	default:
		return fmt.Errorf("%w: unknown mutation op %q", ErrInvalidMutation, m.Op)
	}

	return nil
}
