package emi

import (
	"github.com/shopspring/decimal"
)

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
	one          = decimal.NewFromInt(1)
)

// Schedule represents the computed repayment schedule for a loan
type Schedule struct {
	MonthlyEMI    decimal.Decimal `json:"monthly_emi"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	TotalPayment  decimal.Decimal `json:"total_payment"`
}

// ComputeSchedule computes the equated monthly installment for the given
// principal, annual interest rate (percent) and tenure in months.
//
// Intermediate arithmetic is kept at full decimal precision; results are
// rounded to 2 places only here, at the boundary.
func ComputeSchedule(principal, annualRatePct decimal.Decimal, tenureMonths int) Schedule {
	if tenureMonths <= 0 {
		return Schedule{
			MonthlyEMI:    decimal.Zero,
			TotalInterest: decimal.Zero,
			TotalPayment:  decimal.Zero,
		}
	}

	months := decimal.NewFromInt(int64(tenureMonths))

	// Monthly rate r = annual% / 100 / 12
	r := annualRatePct.Div(hundred).Div(monthsInYear)

	if r.IsZero() {
		monthly := principal.Div(months)
		return Schedule{
			MonthlyEMI:    monthly.Round(2),
			TotalInterest: decimal.Zero,
			TotalPayment:  principal.Round(2),
		}
	}

	// EMI = P·r·(1+r)^n / ((1+r)^n − 1)
	factor := one.Add(r).Pow(months)
	monthly := principal.Mul(r).Mul(factor).Div(factor.Sub(one))
	total := monthly.Mul(months)

	return Schedule{
		MonthlyEMI:    monthly.Round(2),
		TotalInterest: total.Sub(principal).Round(2),
		TotalPayment:  total.Round(2),
	}
}
