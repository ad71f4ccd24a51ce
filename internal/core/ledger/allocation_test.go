package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func state(emi string, tenure, paid int) LoanState {
	return LoanState{MonthlyEMI: dec(emi), TenureMonths: tenure, PaidInstallments: paid}
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name    string
		state   LoanState
		amount  string
		covered int
		before  string
		after   string
		closed  bool
	}{
		{
			name:   "two and a half EMIs clears two installments",
			state:  state("1000", 12, 0),
			amount: "2500", covered: 2, before: "12000", after: "10000",
		},
		{
			name:   "exact single EMI",
			state:  state("1000", 12, 5),
			amount: "1000", covered: 1, before: "7000", after: "6000",
		},
		{
			name:   "final installment closes the loan",
			state:  state("1000", 12, 11),
			amount: "1000", covered: 1, before: "1000", after: "0", closed: true,
		},
		{
			name:   "overpayment capped at remaining installments",
			state:  state("1000", 12, 10),
			amount: "5000", covered: 2, before: "2000", after: "0", closed: true,
		},
		{
			name:   "fractional EMI values round at the boundary",
			state:  state("8721.98", 12, 0),
			amount: "17443.96", covered: 2, before: "104663.76", after: "87219.80",
		},
		// Quotients past int64 must still cap at the remaining installments
		// instead of wrapping through IntPart.
		{
			name:   "amount of 2^63 EMIs caps at remaining",
			state:  state("1000", 12, 5),
			amount: "9223372036854775808000", covered: 7, before: "7000", after: "0", closed: true,
		},
		{
			name:   "amount of 2^64 EMIs caps at remaining",
			state:  state("1000", 12, 5),
			amount: "18446744073709551616000", covered: 7, before: "7000", after: "0", closed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(tt.state, dec(tt.amount))
			if err != nil {
				t.Fatalf("Allocate: %v", err)
			}
			if got.InstallmentsCovered != tt.covered {
				t.Errorf("covered = %d, want %d", got.InstallmentsCovered, tt.covered)
			}
			if !got.BalanceBefore.Equal(dec(tt.before)) {
				t.Errorf("balanceBefore = %s, want %s", got.BalanceBefore, tt.before)
			}
			if !got.BalanceAfter.Equal(dec(tt.after)) {
				t.Errorf("balanceAfter = %s, want %s", got.BalanceAfter, tt.after)
			}
			if got.IsNowClosed != tt.closed {
				t.Errorf("isNowClosed = %v, want %v", got.IsNowClosed, tt.closed)
			}
		})
	}
}

func TestAllocate_Rejections(t *testing.T) {
	t.Run("closed loan", func(t *testing.T) {
		_, err := Allocate(state("1000", 12, 12), dec("1000"))
		if !errors.Is(err, ErrAlreadyClosed) {
			t.Fatalf("err = %v, want ErrAlreadyClosed", err)
		}
	})

	t.Run("one rupee short of an EMI", func(t *testing.T) {
		_, err := Allocate(state("1000", 12, 0), dec("999"))
		if !errors.Is(err, ErrBelowMinimum) {
			t.Fatalf("err = %v, want ErrBelowMinimum", err)
		}
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := Allocate(state("1000", 12, 0), decimal.Zero)
		if !errors.Is(err, ErrBelowMinimum) {
			t.Fatalf("err = %v, want ErrBelowMinimum", err)
		}
	})

	t.Run("closed wins over below minimum", func(t *testing.T) {
		_, err := Allocate(state("1000", 12, 12), dec("1"))
		if !errors.Is(err, ErrAlreadyClosed) {
			t.Fatalf("err = %v, want ErrAlreadyClosed", err)
		}
	})
}

// Balance arithmetic must reconcile exactly: after = before − EMI×covered.
func TestAllocate_NoDrift(t *testing.T) {
	s := state("8721.98", 60, 0)
	for paid := 0; paid < 60; paid++ {
		s.PaidInstallments = paid
		got, err := Allocate(s, dec("8721.98"))
		if err != nil {
			t.Fatalf("paid=%d: %v", paid, err)
		}
		want := got.BalanceBefore.Sub(s.MonthlyEMI.Mul(decimal.NewFromInt(int64(got.InstallmentsCovered)))).Round(2)
		if !got.BalanceAfter.Equal(want) {
			t.Fatalf("paid=%d: after=%s, want %s", paid, got.BalanceAfter, want)
		}
	}
}
