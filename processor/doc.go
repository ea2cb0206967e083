// Package processor implements the transaction processing engine. Process
// applies a pending transfer or refund as one atomic conditional write:
// debit the payer (gated on sufficient balance), credit the recipient,
// and complete the transaction record (gated on it still being PENDING).
// Refunds additionally move their original from REFUND_STARTED to REFUNDED
// in the same write, so the pair transitions together or not at all.
//
// A failed precondition is recorded on the transaction as ERROR through a
// second, separate conditional write; losing that compensating write to a
// concurrent actor is tolerated and only logged. Store I/O failures on the
// first attempt propagate to the caller, which may safely re-invoke
// Process while the record remains PENDING.
package processor
