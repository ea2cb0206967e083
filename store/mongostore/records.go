package mongostore

import (
	"fmt"
	"time"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/store"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/transaction"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/wallet"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// walletDoc is the persisted shape of a wallet record.
type walletDoc struct {
	OwnerID   string                          `bson:"_id"`
	Type      wallet.Type                     `bson:"type"`
	Coins     map[string]primitive.Decimal128 `bson:"coins"`
	CreatedAt time.Time                       `bson:"createdAt"`
	UpdatedAt time.Time                       `bson:"updatedAt"`
}

// transactionDoc is the persisted shape of a transaction record.
type transactionDoc struct {
	ID                   string               `bson:"_id"`
	PayerID              string               `bson:"payerId"`
	RecipientID          string               `bson:"recipientId"`
	CurrencyID           string               `bson:"currencyId"`
	Amount               primitive.Decimal128 `bson:"amount"`
	Type                 transaction.Type     `bson:"type"`
	Status               transaction.Status   `bson:"status"`
	Error                transaction.ErrorType `bson:"error"`
	RefundTransactionIDs []string             `bson:"refundTransactionIds,omitempty"`
	CreatedAt            time.Time            `bson:"createdAt"`
	UpdatedAt            time.Time            `bson:"updatedAt"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	converted, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert decimal %q: %w", d, err)
	}

	return converted, nil
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	converted, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("convert decimal128 %q: %w", d, err)
	}

	return converted, nil
}

func toWalletDoc(w *wallet.Wallet) (walletDoc, error) {
	coins := make(map[string]primitive.Decimal128, len(w.Coins))

	for currencyID, balance := range w.Coins {
		converted, err := toDecimal128(balance)
		if err != nil {
			return walletDoc{}, err
		}

		coins[currencyID] = converted
	}

	return walletDoc{
		OwnerID:   w.OwnerID,
		Type:      w.Type,
		Coins:     coins,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}, nil
}

func (doc walletDoc) toWallet() (*wallet.Wallet, error) {
	coins := make(map[string]decimal.Decimal, len(doc.Coins))

	for currencyID, balance := range doc.Coins {
		converted, err := fromDecimal128(balance)
		if err != nil {
			return nil, err
		}

		coins[currencyID] = converted
	}

	return &wallet.Wallet{
		OwnerID:   doc.OwnerID,
		Type:      doc.Type,
		Coins:     coins,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func toTransactionDoc(t *transaction.Transaction) (transactionDoc, error) {
	amount, err := toDecimal128(t.Amount)
	if err != nil {
		return transactionDoc{}, err
	}

	return transactionDoc{
		ID:                   t.ID,
		PayerID:              t.PayerID,
		RecipientID:          t.RecipientID,
		CurrencyID:           t.CurrencyID,
		Amount:               amount,
		Type:                 t.Type,
		Status:               t.Status,
		Error:                t.Error,
		RefundTransactionIDs: t.RefundTransactionIDs,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}, nil
}

func (doc transactionDoc) toTransaction() (*transaction.Transaction, error) {
	amount, err := fromDecimal128(doc.Amount)
	if err != nil {
		return nil, err
	}

	return &transaction.Transaction{
		ID:                   doc.ID,
		PayerID:              doc.PayerID,
		RecipientID:          doc.RecipientID,
		CurrencyID:           doc.CurrencyID,
		Amount:               amount,
		Type:                 doc.Type,
		Status:               doc.Status,
		Error:                doc.Error,
		RefundTransactionIDs: doc.RefundTransactionIDs,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}, nil
}

// bsonValue converts a mutation value into its persisted representation.
func bsonValue(value any) (any, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return toDecimal128(v)
	case transaction.Status:
		return string(v), nil
	case transaction.ErrorType:
		return string(v), nil
	case string:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: unsupported mutation value type %T", store.ErrInvalidMutation, value)
	}
}
