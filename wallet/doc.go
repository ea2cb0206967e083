// Package wallet defines the account ledger model: one record per owner
// mapping currency ids to non-negative balances. Balances are mutated only
// through the store's conditional write primitives, never in process
// memory.
package wallet
