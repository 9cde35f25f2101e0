package endpoints

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
	"github.com/Esja2001/CoopVilcabamba-sub000/utils"
)

// Term-deposit annual rates by minimum term in months. Longer money earns
// the better tier.
var depositRateTiers = []struct {
	MinMonths  int
	AnnualRate decimal.Decimal
}{
	{12, decimal.NewFromFloat(0.0875)},
	{6, decimal.NewFromFloat(0.0790)},
	{3, decimal.NewFromFloat(0.0700)},
	{1, decimal.NewFromFloat(0.0625)},
}

var monthsPerYear = decimal.NewFromInt(12)

// DepositProjection is one month of a simulated term deposit.
type DepositProjection struct {
	Month    int
	Interest decimal.Decimal
	Balance  decimal.Decimal
}

// depositRate returns the annual rate for a term, or false when the term is
// below the shortest tier.
func depositRate(months int) (decimal.Decimal, bool) {
	for _, tier := range depositRateTiers {
		if months >= tier.MinMonths {
			return tier.AnnualRate, true
		}
	}
	return decimal.Zero, false
}

// simulateDeposit projects a term deposit with monthly compounding, rounding
// interest to currency scale each month.
func simulateDeposit(principal decimal.Decimal, months int, annualRate decimal.Decimal) []DepositProjection {
	monthlyRate := annualRate.Div(monthsPerYear)
	balance := principal

	schedule := make([]DepositProjection, 0, months)
	for m := 1; m <= months; m++ {
		interest := balance.Mul(monthlyRate).Round(2)
		balance = balance.Add(interest)
		schedule = append(schedule, DepositProjection{
			Month:    m,
			Interest: interest,
			Balance:  balance,
		})
	}
	return schedule
}

type SimulateInvestmentModel struct {
	Amount string `form:"amount" binding:"required"`
	Months int    `form:"months" binding:"required"`
}

// SimulateInvestment projects earnings for a hypothetical term deposit.
func SimulateInvestment(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("investments.simulate")

	var query SimulateInvestmentModel
	if err := c.ShouldBindQuery(&query); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}

	amount, err := utils.ParseAmount(query.Amount)
	if err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}
	if query.Months < 1 || query.Months > 60 {
		rt.Ef(400, "bad request: term must be between 1 and 60 months")
		return
	}

	rate, ok := depositRate(query.Months)
	if !ok {
		rt.Ef(400, "bad request: no rate tier for a %d month term", query.Months)
		return
	}

	schedule := simulateDeposit(amount, query.Months, rate)

	out := make([]gin.H, 0, len(schedule))
	for _, p := range schedule {
		out = append(out, gin.H{
			"month":    p.Month,
			"interest": p.Interest.StringFixed(2),
			"balance":  p.Balance.StringFixed(2),
		})
	}

	final := schedule[len(schedule)-1]
	c.JSON(200, &gin.H{
		"principal":     amount.StringFixed(2),
		"months":        query.Months,
		"annualRate":    rate.String(),
		"finalBalance":  final.Balance.StringFixed(2),
		"totalInterest": final.Balance.Sub(amount).StringFixed(2),
		"schedule":      out,
	})
	rt.EndBlock()
}
