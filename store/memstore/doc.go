// Package memstore provides an in-memory implementation of the store
// interfaces. A single mutex serializes every write, so conditional and
// multi-record writes are trivially atomic. It backs the unit test suite
// and local development runs.
package memstore
