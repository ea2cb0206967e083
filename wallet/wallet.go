package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies wallet ownership.
type Type string

const (
	// TypeUser identifies a wallet owned by an end user.
	TypeUser Type = "USER"
	// TypePartner identifies a wallet owned by a partner organization.
	TypePartner Type = "PARTNER"
)

// CoinsField is the record field holding the per-currency balance map.
const CoinsField = "coins"

// Wallet holds every currency balance for one owner. A currency slot must
// exist before it can be credited; slots are created once with a zero
// balance and never re-initialized.
type Wallet struct {
	OwnerID   string                     `json:"ownerId" bson:"_id"`
	Type      Type                       `json:"type" bson:"type"`
	Coins     map[string]decimal.Decimal `json:"coins" bson:"coins"`
	CreatedAt time.Time                  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time                  `json:"updatedAt" bson:"updatedAt"`
}

// Balance returns the balance for a currency, defaulting to zero when the
// slot does not exist.
func (w *Wallet) Balance(currencyID string) decimal.Decimal {
	if w == nil || w.Coins == nil {
		return decimal.Zero
	}

	balance, ok := w.Coins[currencyID]
	if !ok {
		return decimal.Zero
	}

	return balance
}

// HasSlot reports whether a currency slot exists for the owner.
func (w *Wallet) HasSlot(currencyID string) bool {
	if w == nil || w.Coins == nil {
		return false
	}

	_, ok := w.Coins[currencyID]

	return ok
}

// CoinField returns the canonical field path for a currency slot, used by
// conditional mutations ("coins.<currencyId>").
func CoinField(currencyID string) string {
	return CoinsField + "." + currencyID
}
