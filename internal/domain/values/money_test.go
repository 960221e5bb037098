package values

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("valid currency", func(t *testing.T) {
		m, err := NewMoneyFromString("123.45", "usd")
		require.NoError(t, err)
		assert.Equal(t, "USD", m.Currency())
		assert.Equal(t, "123.45 USD", m.String())
	})

	t.Run("rejects bad currencies", func(t *testing.T) {
		for _, currency := range []string{"", "US", "DOLLARS", "XXX"} {
			_, err := NewMoneyFromString("1.00", currency)
			assert.Error(t, err, "currency %q", currency)
		}
	})

	t.Run("rejects malformed amounts", func(t *testing.T) {
		_, err := NewMoneyFromString("12.3.4", "USD")
		assert.Error(t, err)
	})
}

func TestMoneyComparisons(t *testing.T) {
	tenK := MustNewMoneyFromFloat(10000, USD)

	t.Run("same currency", func(t *testing.T) {
		assert.True(t, MustNewMoneyFromFloat(10000, USD).GreaterThanOrEqual(tenK))
		assert.True(t, MustNewMoneyFromFloat(10000.01, USD).GreaterThanOrEqual(tenK))
		assert.False(t, MustNewMoneyFromFloat(9999.99, USD).GreaterThanOrEqual(tenK))
	})

	t.Run("currency mismatch is never greater-or-equal", func(t *testing.T) {
		assert.False(t, MustNewMoneyFromFloat(20000, EUR).GreaterThanOrEqual(tenK))
	})
}

func TestMoneyRatio(t *testing.T) {
	deposit := MustNewMoneyFromFloat(5000, USD)

	t.Run("plain division", func(t *testing.T) {
		withdrawal := MustNewMoneyFromFloat(4500, USD)
		assert.True(t, withdrawal.Ratio(deposit).Equal(decimal.NewFromFloat(0.9)))
	})

	t.Run("zero divisor yields zero", func(t *testing.T) {
		assert.True(t, deposit.Ratio(Zero(USD)).IsZero())
	})

	t.Run("currency mismatch yields zero", func(t *testing.T) {
		assert.True(t, MustNewMoneyFromFloat(4500, EUR).Ratio(deposit).IsZero())
	})
}

func TestMoneyJSON(t *testing.T) {
	m, err := NewMoneyFromString("99.95", USD)
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"99.95","currency":"USD"}`, string(raw))

	var back Money
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, m.Equal(back))
}

func TestMoneyScan(t *testing.T) {
	t.Run("json form", func(t *testing.T) {
		var m Money
		require.NoError(t, m.Scan(`{"amount":"12.50","currency":"GBP"}`))
		assert.Equal(t, "GBP", m.Currency())
	})

	t.Run("bare decimal assumes USD", func(t *testing.T) {
		var m Money
		require.NoError(t, m.Scan([]byte("42.00")))
		assert.Equal(t, USD, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.NewFromInt(42)))
	})

	t.Run("nil clears", func(t *testing.T) {
		m := MustNewMoneyFromFloat(1, USD)
		require.NoError(t, m.Scan(nil))
		assert.True(t, m.IsZero())
	})
}
