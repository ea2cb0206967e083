// Package transaction defines the transaction domain model: lifecycle
// statuses and their allowed transitions, transaction types, error
// classification, and the validations a record must pass before the
// processor will attempt it.
//
// Core flow:
//   - ValidateForProcessing rejects malformed records up front.
//   - Status.CanTransitionTo encodes the lifecycle state machine.
//   - TaskResult is the per-call outcome returned by the processor.
package transaction
