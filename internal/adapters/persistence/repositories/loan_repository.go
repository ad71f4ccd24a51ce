package repositories

import (
	"context"
	"errors"

	"quickloan-api/internal/adapters/persistence/models"
	"quickloan-api/internal/core/domain"

	"gorm.io/gorm"
)

// loanRepository implements LoanRepository interface
type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

// Create creates a new loan
func (r *loanRepository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

// FindByIDForUser gets a loan scoped to its owner. The userID scope prevents
// cross-user payments: a miss for another user's loan is indistinguishable
// from a miss for a nonexistent one.
func (r *loanRepository) FindByIDForUser(ctx context.Context, loanID string, userID uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_no ASC")
		}).
		Where("id = ? AND user_id = ?", loanID, userID).
		First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	return &loan, nil
}

// ListByUser lists all loans for a user, newest first
func (r *loanRepository) ListByUser(ctx context.Context, userID uint) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_no ASC")
		}).
		Where("user_id = ?", userID).
		Order("applied_at DESC").
		Find(&loans).Error
	return loans, err
}

// CountOpenByUser counts the user's loans whose status is not Closed
func (r *loanRepository) CountOpenByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND status <> ?", userID, models.LoanStatusClosed).
		Count(&count).Error
	return count, err
}

// SaveWithPayment persists the mutated loan and appends one payment in a
// single transaction. The UPDATE is conditional on the version read by the
// caller; zero affected rows means another payment committed in between and
// the caller must reload and reapply.
func (r *loanRepository) SaveWithPayment(ctx context.Context, loan *models.Loan, payment *models.Payment, expectedVersion uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Loan{}).
			Where("id = ? AND version = ?", loan.ID, expectedVersion).
			Updates(map[string]interface{}{
				"paid_installments": loan.PaidInstallments,
				"status":            loan.Status,
				"completed_at":      loan.CompletedAt,
				"version":           expectedVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrVersionConflict
		}

		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		loan.Version = expectedVersion + 1
		return nil
	})
}

// MarkEmailSent flags a loan after its confirmation mail went out
func (r *loanRepository) MarkEmailSent(ctx context.Context, loanID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ?", loanID).
		Update("email_sent", true).Error
}

// ListOpen lists all non-closed loans (used by the reminder job)
func (r *loanRepository) ListOpen(ctx context.Context) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Where("status <> ?", models.LoanStatusClosed).
		Find(&loans).Error
	return loans, err
}
