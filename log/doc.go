// Package log defines the structured logging abstraction used across the
// engine. Components receive a Logger as a dependency and never construct
// one themselves; the zap package provides the production implementation
// and NewNop is used where log output is unwanted (tests, seed tooling).
package log
