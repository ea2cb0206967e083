// Package backoff provides exponential backoff with jitter for retry loops
// around store and broker connections.
package backoff
