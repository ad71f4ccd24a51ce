package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"quickloan-api/internal/adapters/persistence/models"
	"quickloan-api/internal/adapters/persistence/repositories"
	"quickloan-api/internal/core/domain"
	"quickloan-api/internal/core/emi"
	"quickloan-api/internal/core/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// MaxOpenLoans is the admission-control cap on non-closed loans per user
	MaxOpenLoans = 3

	// DefaultInterestRate applies when an application omits the rate
	defaultInterestRate = "8.5"

	// maxPayRetries bounds reload-and-reapply attempts on version conflicts
	maxPayRetries = 3
)

// Loan service errors
var (
	ErrMissingLoanFields = errors.New("required loan fields are missing")
)

// BelowMinimumError rejects a payment smaller than one EMI. It carries the
// loan's EMI so handlers can tell the user the exact minimum.
type BelowMinimumError struct {
	MonthlyEMI decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum payment is ₹%s (1 EMI)", e.MonthlyEMI.StringFixed(2))
}

func (e *BelowMinimumError) Unwrap() error {
	return ledger.ErrBelowMinimum
}

// LoanService owns the loan lifecycle: application, payment application and
// the Approved → Closed transition.
type LoanService struct {
	loanRepo repositories.LoanRepository
	mailer   Mailer
}

// NewLoanService creates a new loan service
func NewLoanService(loanRepo repositories.LoanRepository, mailer Mailer) *LoanService {
	return &LoanService{
		loanRepo: loanRepo,
		mailer:   mailer,
	}
}

// ApplyLoanInput represents a loan application
type ApplyLoanInput struct {
	ApplicantName  string
	Email          string
	Phone          string
	Address        string
	PanCard        string
	EmploymentType string
	CompanyName    string
	MonthlyIncome  string
	LoanAmount     decimal.Decimal
	TenureMonths   int
	InterestRate   decimal.Decimal
}

// ApplyLoanResult is the created loan plus the advisory mail outcome
type ApplyLoanResult struct {
	Loan      *models.Loan
	EmailSent bool
}

// Apply validates the application, enforces the open-loan limit, computes the
// repayment schedule and persists the auto-approved loan. The confirmation
// mail is best-effort: its failure never fails the application.
func (s *LoanService) Apply(ctx context.Context, userID uint, input *ApplyLoanInput) (*ApplyLoanResult, error) {
	if strings.TrimSpace(input.ApplicantName) == "" ||
		strings.TrimSpace(input.Email) == "" ||
		!input.LoanAmount.IsPositive() ||
		input.TenureMonths <= 0 {
		return nil, ErrMissingLoanFields
	}

	rate := input.InterestRate
	if rate.IsZero() {
		rate, _ = decimal.NewFromString(defaultInterestRate)
	}
	if rate.IsNegative() {
		return nil, ErrMissingLoanFields
	}

	// Best-effort admission control: closed loans don't count.
	open, err := s.loanRepo.CountOpenByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if open >= MaxOpenLoans {
		return nil, domain.ErrLoanLimitReached
	}

	schedule := emi.ComputeSchedule(input.LoanAmount, rate, input.TenureMonths)

	loan := &models.Loan{
		ID:             uuid.New().String(),
		UserID:         userID,
		ApplicantName:  strings.TrimSpace(input.ApplicantName),
		Email:          strings.TrimSpace(input.Email),
		Phone:          input.Phone,
		Address:        input.Address,
		PanCard:        input.PanCard,
		EmploymentType: input.EmploymentType,
		CompanyName:    input.CompanyName,
		MonthlyIncome:  input.MonthlyIncome,
		LoanAmount:     input.LoanAmount.Round(2),
		TenureMonths:   input.TenureMonths,
		InterestRate:   rate,
		MonthlyEMI:     schedule.MonthlyEMI,
		TotalInterest:  schedule.TotalInterest,
		TotalPayment:   schedule.TotalPayment,
		Status:         models.LoanStatusApproved,
	}

	if err := s.loanRepo.Create(ctx, loan); err != nil {
		return nil, err
	}

	log.Printf("✅ Loan %s approved for user %d (%s over %d months)",
		loan.ID, userID, loan.LoanAmount.StringFixed(2), loan.TenureMonths)

	emailSent := false
	if err := s.mailer.SendLoanConfirmation(loan); err != nil {
		log.Printf("⚠️ Loan confirmation mail failed for %s: %v", loan.ID, err)
	} else {
		emailSent = true
		if err := s.loanRepo.MarkEmailSent(ctx, loan.ID); err != nil {
			log.Printf("⚠️ Failed to flag email_sent on loan %s: %v", loan.ID, err)
		} else {
			loan.EmailSent = true
		}
	}

	return &ApplyLoanResult{Loan: loan, EmailSent: emailSent}, nil
}

// PaymentOutcome is the result of a successful payment
type PaymentOutcome struct {
	Loan                *models.Loan
	InstallmentsCovered int
	BalanceAfter        decimal.Decimal
	IsNowClosed         bool
}

// Pay applies a tendered amount to a loan owned by userID. The whole
// read-allocate-write cycle either commits atomically or leaves no trace; on
// a concurrent write to the same loan it reloads and reapplies the
// allocation. Notifications fire after the commit and cannot fail it.
func (s *LoanService) Pay(ctx context.Context, loanID string, userID uint, amount decimal.Decimal) (*PaymentOutcome, error) {
	for attempt := 0; attempt < maxPayRetries; attempt++ {
		loan, err := s.loanRepo.FindByIDForUser(ctx, loanID, userID)
		if err != nil {
			return nil, err
		}

		alloc, err := ledger.Allocate(ledger.LoanState{
			MonthlyEMI:       loan.MonthlyEMI,
			TenureMonths:     loan.TenureMonths,
			PaidInstallments: loan.PaidInstallments,
		}, amount)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrAlreadyClosed):
				return nil, domain.ErrLoanClosed
			case errors.Is(err, ledger.ErrBelowMinimum):
				return nil, &BelowMinimumError{MonthlyEMI: loan.MonthlyEMI}
			}
			return nil, err
		}

		now := time.Now()
		payment := &models.Payment{
			LoanID:              loan.ID,
			PaymentNo:           len(loan.Payments) + 1,
			Amount:              amount.Round(2),
			InstallmentsCovered: alloc.InstallmentsCovered,
			BalanceBefore:       alloc.BalanceBefore,
			BalanceAfter:        alloc.BalanceAfter,
			PaidAt:              now,
		}

		expectedVersion := loan.Version
		loan.PaidInstallments += alloc.InstallmentsCovered
		if alloc.IsNowClosed {
			loan.Status = models.LoanStatusClosed
			loan.CompletedAt = &now
		}

		err = s.loanRepo.SaveWithPayment(ctx, loan, payment, expectedVersion)
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Printf("🔄 Concurrent payment on loan %s, retrying (%d/%d)", loan.ID, attempt+1, maxPayRetries)
			continue
		}
		if err != nil {
			return nil, err
		}

		loan.Payments = append(loan.Payments, *payment)

		// Post-commit, fire-and-forget.
		go s.sendPaymentMails(loan, payment, alloc.IsNowClosed)

		return &PaymentOutcome{
			Loan:                loan,
			InstallmentsCovered: alloc.InstallmentsCovered,
			BalanceAfter:        alloc.BalanceAfter,
			IsNowClosed:         alloc.IsNowClosed,
		}, nil
	}

	return nil, domain.ErrVersionConflict
}

// sendPaymentMails delivers the receipt and, when the loan just closed, the
// closure mail. Failures are logged only.
func (s *LoanService) sendPaymentMails(loan *models.Loan, payment *models.Payment, justClosed bool) {
	if err := s.mailer.SendPaymentReceipt(loan, payment); err != nil {
		log.Printf("⚠️ Payment receipt mail failed for loan %s: %v", loan.ID, err)
	}
	if justClosed {
		if err := s.mailer.SendLoanClosed(loan); err != nil {
			log.Printf("⚠️ Loan closed mail failed for loan %s: %v", loan.ID, err)
		}
	}
}

// GetLoan fetches one loan owned by userID with its payment ledger
func (s *LoanService) GetLoan(ctx context.Context, loanID string, userID uint) (*models.Loan, error) {
	return s.loanRepo.FindByIDForUser(ctx, loanID, userID)
}

// MyLoans lists the user's loans newest-first plus the open-loan-limit flag
func (s *LoanService) MyLoans(ctx context.Context, userID uint) ([]*models.Loan, bool, error) {
	loans, err := s.loanRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	open := 0
	for _, l := range loans {
		if !l.IsClosed() {
			open++
		}
	}

	return loans, open >= MaxOpenLoans, nil
}

// History returns the user's loans with their full payment ledgers
func (s *LoanService) History(ctx context.Context, userID uint) ([]*models.LoanHistoryEntry, error) {
	loans, err := s.loanRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	history := make([]*models.LoanHistoryEntry, 0, len(loans))
	for _, l := range loans {
		history = append(history, l.ToHistoryEntry())
	}
	return history, nil
}

// LoanSummary aggregates a user's position across all loans
type LoanSummary struct {
	TotalLoans       int             `json:"total_loans"`
	OpenLoans        int             `json:"open_loans"`
	ClosedLoans      int             `json:"closed_loans"`
	LimitReached     bool            `json:"limit_reached"`
	TotalPrincipal   decimal.Decimal `json:"total_principal"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	NextEMIDue       decimal.Decimal `json:"next_emi_due"`
}

// Summary computes the dashboard aggregate for a user
func (s *LoanService) Summary(ctx context.Context, userID uint) (*LoanSummary, error) {
	loans, err := s.loanRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &LoanSummary{
		TotalLoans:       len(loans),
		TotalPrincipal:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		TotalPaid:        decimal.Zero,
		NextEMIDue:       decimal.Zero,
	}

	for _, l := range loans {
		summary.TotalPrincipal = summary.TotalPrincipal.Add(l.LoanAmount)
		for _, p := range l.Payments {
			summary.TotalPaid = summary.TotalPaid.Add(p.Amount)
		}
		if l.IsClosed() {
			summary.ClosedLoans++
			continue
		}
		summary.OpenLoans++
		summary.TotalOutstanding = summary.TotalOutstanding.Add(l.OutstandingBalance())
		summary.NextEMIDue = summary.NextEMIDue.Add(l.MonthlyEMI)
	}

	summary.LimitReached = summary.OpenLoans >= MaxOpenLoans
	return summary, nil
}
