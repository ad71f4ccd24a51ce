package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// Auth tables
// ============================================================

// User represents users table
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:100;not null" json:"name"`
	Email     string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// UserResponse DTO
type UserResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:255;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// ============================================================
// Loan tables
// ============================================================

// Loan statuses
const (
	LoanStatusApproved = "Approved"
	LoanStatusClosed   = "Closed"
)

// Loan holds the contracted terms and the repayment ledger state. Terms are
// immutable after creation; only PaidInstallments, Status, EmailSent,
// CompletedAt and the payments collection change over the loan's lifetime.
// Version guards every read-modify-write against concurrent payments on the
// same loan.
type Loan struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	UserID         uint   `gorm:"not null;index" json:"user_id"`
	ApplicantName  string `gorm:"size:100;not null" json:"applicant_name"`
	Email          string `gorm:"size:100;not null" json:"email"`
	Phone          string `gorm:"size:20" json:"phone,omitempty"`
	Address        string `gorm:"type:text" json:"address,omitempty"`
	PanCard        string `gorm:"size:20" json:"pan_card,omitempty"`
	EmploymentType string `gorm:"size:50" json:"employment_type,omitempty"`
	CompanyName    string `gorm:"size:100" json:"company_name,omitempty"`
	MonthlyIncome  string `gorm:"size:50" json:"monthly_income,omitempty"`

	LoanAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"loan_amount"`
	TenureMonths  int             `gorm:"not null" json:"tenure"`
	InterestRate  decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"interest_rate"`
	MonthlyEMI    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"monthly_emi"`
	TotalInterest decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_interest"`
	TotalPayment  decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_payment"`

	Status           string     `gorm:"size:20;not null;default:'Approved'" json:"status"`
	EmailSent        bool       `gorm:"default:false" json:"email_sent"`
	PaidInstallments int        `gorm:"not null;default:0" json:"paid_installments"`
	Version          uint       `gorm:"not null;default:0" json:"-"`
	CompletedAt      *time.Time `json:"completed_at"`
	AppliedAt        time.Time  `gorm:"autoCreateTime" json:"applied_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"-"`

	Payments []Payment `gorm:"foreignKey:LoanID" json:"payments"`
}

func (Loan) TableName() string {
	return "loans"
}

// IsClosed reports whether all installments are paid.
func (l *Loan) IsClosed() bool {
	return l.Status == LoanStatusClosed
}

// RemainingInstallments returns the number of unpaid installments.
func (l *Loan) RemainingInstallments() int {
	return l.TenureMonths - l.PaidInstallments
}

// OutstandingBalance is monthlyEMI × remaining installments, rounded to 2 places.
func (l *Loan) OutstandingBalance() decimal.Decimal {
	return l.MonthlyEMI.Mul(decimal.NewFromInt(int64(l.RemainingInstallments()))).Round(2)
}

// Payment is an append-only ledger record, ordered by PaymentNo within a loan.
type Payment struct {
	ID                  uint            `gorm:"primaryKey" json:"-"`
	LoanID              string          `gorm:"size:36;not null;index:idx_loan_payment_no,unique" json:"-"`
	PaymentNo           int             `gorm:"not null;index:idx_loan_payment_no,unique" json:"payment_no"`
	Amount              decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	InstallmentsCovered int             `gorm:"not null" json:"installments_covered"`
	BalanceBefore       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balance_before"`
	BalanceAfter        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balance_after"`
	PaidAt              time.Time       `gorm:"not null" json:"paid_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// LoanHistoryEntry DTO for the payment-history endpoint
type LoanHistoryEntry struct {
	LoanID           string          `json:"loan_id"`
	LoanAmount       decimal.Decimal `json:"loan_amount"`
	TenureMonths     int             `json:"tenure"`
	MonthlyEMI       decimal.Decimal `json:"monthly_emi"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	Status           string          `json:"status"`
	AppliedAt        time.Time       `json:"applied_at"`
	CompletedAt      *time.Time      `json:"completed_at"`
	PaidInstallments int             `json:"paid_installments"`
	Payments         []Payment       `json:"payments"`
}

func (l *Loan) ToHistoryEntry() *LoanHistoryEntry {
	payments := l.Payments
	if payments == nil {
		payments = []Payment{}
	}
	return &LoanHistoryEntry{
		LoanID:           l.ID,
		LoanAmount:       l.LoanAmount,
		TenureMonths:     l.TenureMonths,
		MonthlyEMI:       l.MonthlyEMI,
		InterestRate:     l.InterestRate,
		Status:           l.Status,
		AppliedAt:        l.AppliedAt,
		CompletedAt:      l.CompletedAt,
		PaidInstallments: l.PaidInstallments,
		Payments:         payments,
	}
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate runs auto migration for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Loan{},
		&Payment{},
	)
}
