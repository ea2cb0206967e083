// Package zap bridges the log abstraction to zap-based logging while
// preserving structured fields.
package zap
