// Package mongostore implements the store interfaces on MongoDB. A
// mutation's preconditions become the update filter, so a conditional
// write is a single UpdateOne whose MatchedCount reveals whether the
// conditions held. Multi-record writes run inside a session transaction
// and abort on the first unmatched update, which keeps the set
// all-or-nothing. Balances are stored as Decimal128.
//
// Transactions require a replica set deployment; the integration tests
// start a single-node replica set container.
package mongostore
