package transaction

import "strings"

// ValidateForProcessing checks that a record is well-formed enough to be
// handed to the processor. It does not consult the store: balance and
// status preconditions are enforced by the conditional write itself.
func ValidateForProcessing(t *Transaction) error {
	if t == nil {
		return NewDomainError(ErrorInvalidInput, "transaction", "transaction is required")
	}

	if strings.TrimSpace(t.ID) == "" {
		return NewDomainError(ErrorInvalidInput, "transactionId", "transactionId is required")
	}

	if strings.TrimSpace(t.PayerID) == "" {
		return NewDomainError(ErrorInvalidInput, "payerId", "payerId is required")
	}

	if strings.TrimSpace(t.RecipientID) == "" {
		return NewDomainError(ErrorInvalidInput, "recipientId", "recipientId is required")
	}

	if t.PayerID == t.RecipientID {
		return NewDomainError(ErrorInvalidInput, "recipientId", "payer and recipient must differ")
	}

	if strings.TrimSpace(t.CurrencyID) == "" {
		return NewDomainError(ErrorInvalidInput, "currencyId", "currencyId is required")
	}

	if !t.Amount.IsPositive() {
		return NewDomainError(ErrorInvalidInput, "amount", "amount must be greater than zero")
	}

	if !t.Type.IsValid() {
		return NewDomainError(ErrorInvalidInput, "type", "type must be TRANSFER or REFUND")
	}

	if t.Type == TypeRefund && t.RefundOriginalID() == "" {
		return NewDomainError(ErrorRefundTargetMissing, "refundTransactionIds", "refund requires the original transaction id")
	}

	return nil
}
