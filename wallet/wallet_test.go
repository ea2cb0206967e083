package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBalance(t *testing.T) {
	t.Parallel()

	w := &Wallet{
		OwnerID: "alice",
		Type:    TypeUser,
		Coins:   map[string]decimal.Decimal{"OM_COIN": decimal.NewFromInt(42)},
	}

	assert.True(t, w.Balance("OM_COIN").Equal(decimal.NewFromInt(42)))
	assert.True(t, w.Balance("GEM").IsZero())

	var nilWallet *Wallet
	assert.True(t, nilWallet.Balance("OM_COIN").IsZero())
}

func TestHasSlot(t *testing.T) {
	t.Parallel()

	w := &Wallet{Coins: map[string]decimal.Decimal{"OM_COIN": decimal.Zero}}

	// A zero balance is still an initialized slot.
	assert.True(t, w.HasSlot("OM_COIN"))
	assert.False(t, w.HasSlot("GEM"))

	var nilWallet *Wallet
	assert.False(t, nilWallet.HasSlot("OM_COIN"))
}

func TestCoinField(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "coins.OM_COIN", CoinField("OM_COIN"))
}
