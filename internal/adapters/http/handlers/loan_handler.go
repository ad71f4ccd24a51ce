package handlers

import (
	"errors"
	"fmt"

	"quickloan-api/internal/core/domain"
	"quickloan-api/internal/core/services"
	"quickloan-api/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// LoanHandler handles loan endpoints
type LoanHandler struct {
	loanService *services.LoanService
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{
		loanService: loanService,
	}
}

// ApplyLoanRequest represents a loan application request body
type ApplyLoanRequest struct {
	ApplicantName  string          `json:"applicant_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	PanCard        string          `json:"pan_card"`
	EmploymentType string          `json:"employment_type"`
	CompanyName    string          `json:"company_name"`
	MonthlyIncome  string          `json:"monthly_income"`
	LoanAmount     decimal.Decimal `json:"loan_amount"`
	TenureMonths   int             `json:"tenure_months"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
}

// PayRequest represents a payment request body
type PayRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Apply handles a loan application
// @Summary Apply for a loan
// @Description Validate the application, compute the EMI schedule and create an auto-approved loan
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ApplyLoanRequest true "Loan application"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /loans/apply [post]
func (h *LoanHandler) Apply(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var req ApplyLoanRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	input := &services.ApplyLoanInput{
		ApplicantName:  req.ApplicantName,
		Email:          req.Email,
		Phone:          req.Phone,
		Address:        req.Address,
		PanCard:        req.PanCard,
		EmploymentType: req.EmploymentType,
		CompanyName:    req.CompanyName,
		MonthlyIncome:  req.MonthlyIncome,
		LoanAmount:     req.LoanAmount,
		TenureMonths:   req.TenureMonths,
		InterestRate:   req.InterestRate,
	}

	result, err := h.loanService.Apply(c.Context(), userID, input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingLoanFields):
			return response.BadRequest(c, "Applicant name, email, a positive loan amount and tenure are required")
		case errors.Is(err, domain.ErrLoanLimitReached):
			return response.BadRequest(c, "Loan limit reached. A maximum of 3 active loans are allowed per account.")
		default:
			return response.InternalServerError(c, "Failed to process loan application")
		}
	}

	return response.Created(c, "Loan approved", fiber.Map{
		"loan":       result.Loan,
		"email_sent": result.EmailSent,
	})
}

// Pay applies a payment to a loan
// @Summary Make a payment
// @Description Apply a tendered amount to the loan, covering whole EMIs
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param body body PayRequest true "Payment amount"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/pay [post]
func (h *LoanHandler) Pay(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	loanID := c.Params("id")
	if loanID == "" {
		return response.BadRequest(c, "Loan ID is required")
	}

	var req PayRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	outcome, err := h.loanService.Pay(c.Context(), loanID, userID, req.Amount)
	if err != nil {
		var belowMin *services.BelowMinimumError
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, domain.ErrLoanClosed):
			return response.BadRequest(c, "All installments are already paid.")
		case errors.As(err, &belowMin):
			return response.BadRequest(c, fmt.Sprintf("Minimum payment is ₹%s (1 EMI).", belowMin.MonthlyEMI.StringFixed(2)))
		case errors.Is(err, domain.ErrVersionConflict):
			return response.Conflict(c, "The loan was updated concurrently. Please retry.")
		default:
			return response.InternalServerError(c, "Failed to process payment")
		}
	}

	return response.Success(c, "Payment recorded", fiber.Map{
		"loan":                 outcome.Loan,
		"installments_covered": outcome.InstallmentsCovered,
		"balance_after":        outcome.BalanceAfter,
		"is_now_closed":        outcome.IsNowClosed,
	})
}

// MyLoans lists the authenticated user's loans
// @Summary List my loans
// @Description List the user's loans newest-first with the open-loan-limit flag
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /loans [get]
func (h *LoanHandler) MyLoans(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	loans, limitReached, err := h.loanService.MyLoans(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch loans")
	}

	return response.Success(c, "Loans retrieved successfully", fiber.Map{
		"loans":         loans,
		"count":         len(loans),
		"limit_reached": limitReached,
	})
}

// GetLoan returns one loan with its payment ledger
// @Summary Get a loan
// @Description Fetch one of the user's loans with its full payment history
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /loans/{id} [get]
func (h *LoanHandler) GetLoan(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	loanID := c.Params("id")
	loan, err := h.loanService.GetLoan(c.Context(), loanID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return response.NotFound(c, "Loan not found")
		}
		return response.InternalServerError(c, "Failed to fetch loan")
	}

	return response.Success(c, "Loan retrieved successfully", fiber.Map{
		"loan": loan,
	})
}

// History returns the user's loans with their payment ledgers
// @Summary Loan history
// @Description List the user's loans with every recorded payment
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /loans/history [get]
func (h *LoanHandler) History(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	history, err := h.loanService.History(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch loan history")
	}

	return response.Success(c, "Loan history retrieved successfully", fiber.Map{
		"loans": history,
	})
}

// Summary returns the user's aggregate loan position
// @Summary Loan summary
// @Description Aggregate counts, outstanding balance and next EMI due across the user's loans
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /loans/summary [get]
func (h *LoanHandler) Summary(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	summary, err := h.loanService.Summary(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to compute loan summary")
	}

	return response.Success(c, "Loan summary retrieved successfully", fiber.Map{
		"summary": summary,
	})
}
