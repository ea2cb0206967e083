// Package store defines the storage contract the processing engine runs
// against: typed conditional mutations, the wallet and transaction store
// interfaces, and the sentinel errors used to classify write outcomes.
//
// A mutation carries its preconditions as structured values. The store
// reports one of three outcomes per call: applied (nil error), condition
// failed (ErrConditionFailed), or an I/O error (anything else). A failed
// condition is ordinary control flow for callers, not an exceptional path.
package store
