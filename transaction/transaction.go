package transaction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a transaction record.
//
// Semantics:
//   - PENDING: submitted but not yet processed.
//   - COMPLETED: balances moved; terminal for the processor.
//   - ERROR: processing failed; terminal.
//   - REFUND_STARTED: set by the submitter on a COMPLETED original before a
//     refund is enqueued, marking the record as reserved by that refund.
//   - REFUNDED: the original of a completed refund; terminal.
//
// Transitions:
//
//	PENDING → COMPLETED | ERROR
//	COMPLETED → REFUND_STARTED   (submitter, outside the processor)
//	REFUND_STARTED → REFUNDED    (refund completed)
//	REFUND_STARTED → COMPLETED   (refund failed, reservation rolled back)
type Status string

const (
	// StatusPending marks a record as submitted but not yet processed.
	StatusPending Status = "PENDING"
	// StatusCompleted marks a record whose balance movement was applied.
	StatusCompleted Status = "COMPLETED"
	// StatusError marks a record whose processing failed.
	StatusError Status = "ERROR"
	// StatusRefundStarted marks an original reserved by a pending refund.
	StatusRefundStarted Status = "REFUND_STARTED"
	// StatusRefunded marks an original whose refund completed.
	StatusRefunded Status = "REFUNDED"
)

// ParseStatus validates and converts a raw string status.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)

	if !status.IsValid() {
		return "", NewDomainError(ErrorInvalidInput, "status", fmt.Sprintf("unknown status %q", raw))
	}

	return status, nil
}

// IsValid reports whether the status is part of the lifecycle.
func (status Status) IsValid() bool {
	switch status {
	case StatusPending, StatusCompleted, StatusError, StatusRefundStarted, StatusRefunded:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the processor performs no further transition
// out of this status. COMPLETED is terminal for the processor even though
// the submitter may later move it to REFUND_STARTED.
func (status Status) IsTerminal() bool {
	switch status {
	case StatusCompleted, StatusError, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from status to next is
// allowed, including the submitter-driven refund reservation.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		return next == StatusCompleted || next == StatusError
	case StatusCompleted:
		return next == StatusRefundStarted
	case StatusRefundStarted:
		return next == StatusRefunded || next == StatusCompleted
	case StatusError, StatusRefunded:
		return false
	default:
		return false
	}
}

func (status Status) String() string {
	return string(status)
}

// Type classifies a transaction as an ordinary transfer or a compensating
// refund.
type Type string

const (
	// TypeTransfer moves value from payer to recipient.
	TypeTransfer Type = "TRANSFER"
	// TypeRefund compensates a previously completed transfer.
	TypeRefund Type = "REFUND"
)

// IsValid reports whether the type is known.
func (t Type) IsValid() bool {
	return t == TypeTransfer || t == TypeRefund
}

// ErrorType classifies why a transaction ended in ERROR.
type ErrorType string

const (
	// ErrorTypeNone marks a transaction without a recorded failure.
	ErrorTypeNone ErrorType = "NONE"
	// ErrorTypeInsufficientBalance marks a conditional write whose
	// precondition set was not met. The store reports condition failure
	// without identifying which precondition broke, so a stale status on
	// the record or its refund original is classified here as well.
	ErrorTypeInsufficientBalance ErrorType = "INSUFFICIENT_BALANCE"
	// ErrorTypeInvalidRequest marks a record rejected by validation before
	// any store write was attempted.
	ErrorTypeInvalidRequest ErrorType = "INVALID_REQUEST"
)

// Transaction is a single transfer or refund record.
//
// RefundTransactionIDs is ordered and non-empty for REFUND records; only
// the first element is consumed today. The list shape is kept for a
// possible multi-original refund extension.
type Transaction struct {
	ID                   string          `json:"transactionId" bson:"_id"`
	PayerID              string          `json:"payerId" bson:"payerId"`
	RecipientID          string          `json:"recipientId" bson:"recipientId"`
	CurrencyID           string          `json:"currencyId" bson:"currencyId"`
	Amount               decimal.Decimal `json:"amount" bson:"amount"`
	Type                 Type            `json:"type" bson:"type"`
	Status               Status          `json:"status" bson:"status"`
	Error                ErrorType       `json:"error" bson:"error"`
	RefundTransactionIDs []string        `json:"refundTransactionIds,omitempty" bson:"refundTransactionIds,omitempty"`
	CreatedAt            time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// RefundOriginalID returns the id of the transaction this refund
// compensates, or "" when none is recorded.
func (t *Transaction) RefundOriginalID() string {
	if len(t.RefundTransactionIDs) == 0 {
		return ""
	}

	return t.RefundTransactionIDs[0]
}

// TaskResult is the outcome of one processing attempt.
type TaskResult struct {
	TransactionID string    `json:"transactionId"`
	Type          Type      `json:"type"`
	Status        Status    `json:"status"`
	Error         ErrorType `json:"error"`
}

// ErrorCode is a domain error code used by transaction validations.
type ErrorCode string

const (
	// ErrorInvalidInput indicates the record failed payload validation.
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorInvalidStateTransition indicates a disallowed lifecycle move.
	ErrorInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	// ErrorRefundTargetMissing indicates a refund without an original.
	ErrorRefundTargetMissing ErrorCode = "REFUND_TARGET_MISSING"
)

// DomainError represents a structured domain validation error.
type DomainError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code ErrorCode, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}
