package repositories

import (
	"context"

	"quickloan-api/internal/adapters/persistence/models"
)

// UserRepository defines user repository interface
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// RefreshTokenRepository defines refresh token repository interface
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id uint) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID uint) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// LoanRepository defines the loan storage contract the lifecycle manager
// depends on. SaveWithPayment is the atomic read-modify-write boundary: it
// persists the mutated loan and appends one payment in a single transaction,
// and fails with domain.ErrVersionConflict when expectedVersion no longer
// matches the stored row.
type LoanRepository interface {
	Create(ctx context.Context, loan *models.Loan) error
	FindByIDForUser(ctx context.Context, loanID string, userID uint) (*models.Loan, error)
	ListByUser(ctx context.Context, userID uint) ([]*models.Loan, error)
	CountOpenByUser(ctx context.Context, userID uint) (int64, error)
	SaveWithPayment(ctx context.Context, loan *models.Loan, payment *models.Payment, expectedVersion uint) error
	MarkEmailSent(ctx context.Context, loanID string) error
	ListOpen(ctx context.Context) ([]*models.Loan, error)
}
