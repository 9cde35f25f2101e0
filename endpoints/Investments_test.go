package endpoints

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositRateTiers(t *testing.T) {
	cases := []struct {
		months int
		rate   string
	}{
		{60, "0.0875"},
		{12, "0.0875"},
		{11, "0.079"},
		{6, "0.079"},
		{5, "0.07"},
		{3, "0.07"},
		{2, "0.0625"},
		{1, "0.0625"},
	}
	for _, tc := range cases {
		rate, ok := depositRate(tc.months)
		require.True(t, ok, "months %d", tc.months)
		assert.True(t, rate.Equal(decimal.RequireFromString(tc.rate)), "months %d: got %s", tc.months, rate)
	}

	_, ok := depositRate(0)
	assert.False(t, ok)
}

func TestSimulateDepositCompoundsMonthly(t *testing.T) {
	principal := decimal.NewFromInt(1200)
	rate, ok := depositRate(12)
	require.True(t, ok)

	schedule := simulateDeposit(principal, 12, rate)
	require.Len(t, schedule, 12)

	// 1200 at 8.75% p.a. earns exactly 8.75 the first month.
	assert.True(t, schedule[0].Interest.Equal(decimal.RequireFromString("8.75")),
		"got %s", schedule[0].Interest)

	balance := principal
	totalInterest := decimal.Zero
	for i, p := range schedule {
		assert.Equal(t, i+1, p.Month)
		assert.True(t, p.Interest.IsPositive())
		assert.GreaterOrEqual(t, p.Interest.Exponent(), int32(-2), "interest is rounded to cents")
		balance = balance.Add(p.Interest)
		totalInterest = totalInterest.Add(p.Interest)
		assert.True(t, p.Balance.Equal(balance), "month %d: %s != %s", p.Month, p.Balance, balance)
	}

	final := schedule[len(schedule)-1]
	assert.True(t, final.Balance.Equal(principal.Add(totalInterest)))
	assert.True(t, final.Balance.GreaterThan(principal))
}
