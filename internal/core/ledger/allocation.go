package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Allocation errors
var (
	ErrAlreadyClosed = errors.New("all installments are already paid")
	ErrBelowMinimum  = errors.New("payment amount is below one EMI")
)

// LoanState is the slice of loan state the allocation engine needs.
type LoanState struct {
	MonthlyEMI       decimal.Decimal
	TenureMonths     int
	PaidInstallments int
}

// Allocation is the result of applying a tendered amount to a loan.
type Allocation struct {
	InstallmentsCovered int
	BalanceBefore       decimal.Decimal
	BalanceAfter        decimal.Decimal
	IsNowClosed         bool
}

// Allocate converts a tendered amount into cleared installments and a new
// outstanding balance. It is pure: all mutation is the caller's responsibility.
//
// Amounts beyond what clears whole installments are accepted but do not buy a
// fractional installment, and the covered count never exceeds the remaining
// installments.
func Allocate(state LoanState, amount decimal.Decimal) (Allocation, error) {
	if state.PaidInstallments >= state.TenureMonths {
		return Allocation{}, ErrAlreadyClosed
	}
	if !amount.IsPositive() || amount.LessThan(state.MonthlyEMI) {
		return Allocation{}, ErrBelowMinimum
	}

	remaining := state.TenureMonths - state.PaidInstallments

	// Cap in decimal space before truncating; for enormous tendered amounts
	// the raw quotient can exceed int64 and IntPart would wrap.
	var covered int
	if amount.GreaterThanOrEqual(state.MonthlyEMI.Mul(decimal.NewFromInt(int64(remaining)))) {
		covered = remaining
	} else {
		covered = int(amount.Div(state.MonthlyEMI).IntPart())
	}

	before := state.MonthlyEMI.Mul(decimal.NewFromInt(int64(remaining))).Round(2)
	after := before.Sub(state.MonthlyEMI.Mul(decimal.NewFromInt(int64(covered)))).Round(2)

	return Allocation{
		InstallmentsCovered: covered,
		BalanceBefore:       before,
		BalanceAfter:        after,
		IsNowClosed:         state.PaidInstallments+covered >= state.TenureMonths,
	}, nil
}
