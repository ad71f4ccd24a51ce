package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"quickloan-api/internal/adapters/persistence/models"
	"quickloan-api/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB creates an in-memory sqlite DB with the full schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		Name:     "Asha Rao",
		Email:    "asha@example.com",
		Password: "x",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func makeLoan(userID uint) *models.Loan {
	return &models.Loan{
		ID:            uuid.New().String(),
		UserID:        userID,
		ApplicantName: "Asha Rao",
		Email:         "asha@example.com",
		LoanAmount:    decimal.NewFromInt(120000),
		TenureMonths:  12,
		InterestRate:  decimal.RequireFromString("8.5"),
		MonthlyEMI:    decimal.NewFromInt(10000),
		TotalInterest: decimal.Zero,
		TotalPayment:  decimal.NewFromInt(120000),
		Status:        models.LoanStatusApproved,
	}
}

func TestCreateAndFindByIDForUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	loan := makeLoan(user.ID)
	if err := repo.Create(ctx, loan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.FindByIDForUser(ctx, loan.ID, user.ID)
	if err != nil {
		t.Fatalf("FindByIDForUser: %v", err)
	}
	if got.ID != loan.ID {
		t.Fatalf("got loan %s", got.ID)
	}
	if !got.MonthlyEMI.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("MonthlyEMI=%s", got.MonthlyEMI)
	}
	if len(got.Payments) != 0 {
		t.Fatalf("payments=%v", got.Payments)
	}
}

func TestFindByIDForUser_WrongUserIsNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	loan := makeLoan(user.ID)
	if err := repo.Create(ctx, loan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.FindByIDForUser(ctx, loan.ID, user.ID+1); !errors.Is(err, domain.ErrLoanNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := repo.FindByIDForUser(ctx, "no-such-loan", user.ID); !errors.Is(err, domain.ErrLoanNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestCountOpenByUser_IgnoresClosed(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	for i := 0; i < 2; i++ {
		if err := repo.Create(ctx, makeLoan(user.ID)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	closed := makeLoan(user.ID)
	closed.Status = models.LoanStatusClosed
	closed.PaidInstallments = 12
	if err := repo.Create(ctx, closed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.CountOpenByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("CountOpenByUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("open=%d", n)
	}
}

func TestSaveWithPayment_PersistsLedgerAndBumpsVersion(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	loan := makeLoan(user.ID)
	if err := repo.Create(ctx, loan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, err := repo.FindByIDForUser(ctx, loan.ID, user.ID)
	if err != nil {
		t.Fatalf("FindByIDForUser: %v", err)
	}

	loaded.PaidInstallments = 2
	payment := &models.Payment{
		LoanID:              loaded.ID,
		PaymentNo:           1,
		Amount:              decimal.NewFromInt(25000),
		InstallmentsCovered: 2,
		BalanceBefore:       decimal.NewFromInt(120000),
		BalanceAfter:        decimal.NewFromInt(100000),
		PaidAt:              time.Now(),
	}
	if err := repo.SaveWithPayment(ctx, loaded, payment, 0); err != nil {
		t.Fatalf("SaveWithPayment: %v", err)
	}
	if loaded.Version != 1 {
		t.Fatalf("Version=%d", loaded.Version)
	}

	reloaded, err := repo.FindByIDForUser(ctx, loan.ID, user.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.PaidInstallments != 2 {
		t.Fatalf("paid=%d", reloaded.PaidInstallments)
	}
	if len(reloaded.Payments) != 1 || reloaded.Payments[0].PaymentNo != 1 {
		t.Fatalf("payments=%+v", reloaded.Payments)
	}
	if got := reloaded.Payments[0].BalanceAfter; !got.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("balanceAfter=%s", got)
	}
}

func TestSaveWithPayment_StaleVersionConflicts(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	loan := makeLoan(user.ID)
	if err := repo.Create(ctx, loan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two readers load the same version.
	first, _ := repo.FindByIDForUser(ctx, loan.ID, user.ID)
	second, _ := repo.FindByIDForUser(ctx, loan.ID, user.ID)

	first.PaidInstallments = 1
	p1 := &models.Payment{LoanID: loan.ID, PaymentNo: 1, Amount: decimal.NewFromInt(10000),
		InstallmentsCovered: 1, BalanceBefore: decimal.NewFromInt(120000),
		BalanceAfter: decimal.NewFromInt(110000), PaidAt: time.Now()}
	if err := repo.SaveWithPayment(ctx, first, p1, 0); err != nil {
		t.Fatalf("first SaveWithPayment: %v", err)
	}

	// The second writer is stale and must not land.
	second.PaidInstallments = 1
	p2 := &models.Payment{LoanID: loan.ID, PaymentNo: 1, Amount: decimal.NewFromInt(10000),
		InstallmentsCovered: 1, BalanceBefore: decimal.NewFromInt(120000),
		BalanceAfter: decimal.NewFromInt(110000), PaidAt: time.Now()}
	if err := repo.SaveWithPayment(ctx, second, p2, 0); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("err=%v", err)
	}

	// No phantom payment from the losing writer.
	reloaded, _ := repo.FindByIDForUser(ctx, loan.ID, user.ID)
	if reloaded.PaidInstallments != 1 {
		t.Fatalf("paid=%d", reloaded.PaidInstallments)
	}
	if len(reloaded.Payments) != 1 {
		t.Fatalf("payments=%d", len(reloaded.Payments))
	}
}

func TestSaveWithPayment_ClosedTransitionPersists(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	loan := makeLoan(user.ID)
	loan.PaidInstallments = 11
	if err := repo.Create(ctx, loan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, _ := repo.FindByIDForUser(ctx, loan.ID, user.ID)
	now := time.Now()
	loaded.PaidInstallments = 12
	loaded.Status = models.LoanStatusClosed
	loaded.CompletedAt = &now
	payment := &models.Payment{LoanID: loan.ID, PaymentNo: 1, Amount: decimal.NewFromInt(10000),
		InstallmentsCovered: 1, BalanceBefore: decimal.NewFromInt(10000),
		BalanceAfter: decimal.Zero, PaidAt: now}
	if err := repo.SaveWithPayment(ctx, loaded, payment, 0); err != nil {
		t.Fatalf("SaveWithPayment: %v", err)
	}

	reloaded, _ := repo.FindByIDForUser(ctx, loan.ID, user.ID)
	if !reloaded.IsClosed() {
		t.Fatalf("status=%s", reloaded.Status)
	}
	if reloaded.CompletedAt == nil {
		t.Fatal("CompletedAt not persisted")
	}
}

func TestListByUser_NewestFirstWithPayments(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	older := makeLoan(user.ID)
	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Force distinct applied_at ordering.
	db.Model(&models.Loan{}).Where("id = ?", older.ID).
		Update("applied_at", time.Now().Add(-time.Hour))

	newer := makeLoan(user.ID)
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loans, err := repo.ListByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(loans) != 2 {
		t.Fatalf("loans=%d", len(loans))
	}
	if loans[0].ID != newer.ID {
		t.Fatal("expected newest loan first")
	}
}

func TestMarkEmailSent(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	loan := makeLoan(user.ID)
	if err := repo.Create(ctx, loan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.MarkEmailSent(ctx, loan.ID); err != nil {
		t.Fatalf("MarkEmailSent: %v", err)
	}

	reloaded, _ := repo.FindByIDForUser(ctx, loan.ID, user.ID)
	if !reloaded.EmailSent {
		t.Fatal("EmailSent not persisted")
	}
}

func TestListOpen_SkipsClosedLoans(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	open := makeLoan(user.ID)
	if err := repo.Create(ctx, open); err != nil {
		t.Fatalf("Create: %v", err)
	}
	closed := makeLoan(user.ID)
	closed.Status = models.LoanStatusClosed
	if err := repo.Create(ctx, closed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loans, err := repo.ListOpen(ctx)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(loans) != 1 || loans[0].ID != open.ID {
		t.Fatalf("loans=%+v", loans)
	}
}
