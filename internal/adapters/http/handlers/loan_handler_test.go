package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"quickloan-api/internal/adapters/http/middleware"
	"quickloan-api/internal/adapters/persistence/models"
	"quickloan-api/internal/adapters/persistence/repositories"
	"quickloan-api/internal/config"
	"quickloan-api/internal/core/services"
	"quickloan-api/internal/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// nullMailer drops every mail; handler tests don't talk to the provider.
type nullMailer struct{}

func (nullMailer) SendLoanConfirmation(*models.Loan) error            { return nil }
func (nullMailer) SendPaymentReceipt(*models.Loan, *models.Payment) error { return nil }
func (nullMailer) SendLoanClosed(*models.Loan) error                  { return nil }
func (nullMailer) SendPaymentReminder(*models.Loan) error             { return nil }

func testConfig() *config.Config {
	return &config.Config{
		AppMode: "dev",
		JWT: config.JWTConfig{
			Secret:           "test_secret",
			RefreshSecret:    "test_refresh_secret",
			AccessTokenMins:  15,
			RefreshTokenDays: 7,
		},
	}
}

// newTestApp wires a fiber app over an in-memory sqlite DB and returns it
// with a seeded user and a valid bearer token.
func newTestApp(t *testing.T) (*fiber.App, *models.User, string) {
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

	user := &models.User{Name: "Asha Rao", Email: "asha@example.com", Password: "x"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	cfg := testConfig()
	token, err := jwt.GenerateAccessToken(user.ID, user.Email, user.Name, cfg.JWT.Secret, cfg.JWT.AccessTokenMins)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	loanRepo := repositories.NewLoanRepository(db)
	loanService := services.NewLoanService(loanRepo, nullMailer{})
	loanHandler := NewLoanHandler(loanService)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.CustomErrorHandler})
	loans := app.Group("/api/v1/loans", middleware.AuthMiddleware(cfg))
	loans.Post("/apply", loanHandler.Apply)
	loans.Get("/", loanHandler.MyLoans)
	loans.Get("/history", loanHandler.History)
	loans.Get("/summary", loanHandler.Summary)
	loans.Get("/:id", loanHandler.GetLoan)
	loans.Post("/:id/pay", loanHandler.Pay)

	return app, user, token
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	var parsed map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	return resp, parsed
}

func applyLoan(t *testing.T, app *fiber.App, token string) string {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/loans/apply", token, fiber.Map{
		"applicant_name": "Asha Rao",
		"email":          "asha@example.com",
		"loan_amount":    120000,
		"tenure_months":  12,
		"interest_rate":  0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("apply status=%d body=%v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]interface{})
	loan := data["loan"].(map[string]interface{})
	return loan["id"].(string)
}

func TestApplyEndpoint_RequiresAuth(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/loans/apply", "", fiber.Map{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestApplyEndpoint_CreatesLoan(t *testing.T) {
	app, _, token := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/loans/apply", token, fiber.Map{
		"applicant_name": "Asha Rao",
		"email":          "asha@example.com",
		"loan_amount":    100000,
		"tenure_months":  12,
		"interest_rate":  8.5,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]interface{})
	loan := data["loan"].(map[string]interface{})
	if loan["status"] != "Approved" {
		t.Fatalf("status=%v", loan["status"])
	}
	if loan["monthly_emi"] != "8721.98" {
		t.Fatalf("monthly_emi=%v", loan["monthly_emi"])
	}
}

func TestApplyEndpoint_RejectsFourthOpenLoan(t *testing.T) {
	app, _, token := newTestApp(t)

	for i := 0; i < 3; i++ {
		applyLoan(t, app, token)
	}

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/loans/apply", token, fiber.Map{
		"applicant_name": "Asha Rao",
		"email":          "asha@example.com",
		"loan_amount":    120000,
		"tenure_months":  12,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if body["error"] != "Loan limit reached. A maximum of 3 active loans are allowed per account." {
		t.Fatalf("error=%v", body["error"])
	}
}

func TestPayEndpoint_FullLifecycle(t *testing.T) {
	app, _, token := newTestApp(t)
	loanID := applyLoan(t, app, token)

	// The default-rate EMI on 120000 over 12 months is 10466.37, so 25000
	// covers exactly 2 installments.
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/loans/"+loanID+"/pay", token, fiber.Map{
		"amount": 25000,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]interface{})
	if data["installments_covered"].(float64) != 2 {
		t.Fatalf("covered=%v", data["installments_covered"])
	}

	// Pay off the remaining 10 installments in one sweep.
	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/loans/"+loanID+"/pay", token, fiber.Map{
		"amount": 110000,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	data = body["data"].(map[string]interface{})
	if data["is_now_closed"] != true {
		t.Fatalf("is_now_closed=%v", data["is_now_closed"])
	}

	// Further payments are rejected with the closed-loan message.
	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/loans/"+loanID+"/pay", token, fiber.Map{
		"amount": 10000,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if body["error"] != "All installments are already paid." {
		t.Fatalf("error=%v", body["error"])
	}
}

func TestPayEndpoint_BelowMinimumNamesTheEMI(t *testing.T) {
	app, _, token := newTestApp(t)
	loanID := applyLoan(t, app, token)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/loans/"+loanID+"/pay", token, fiber.Map{
		"amount": 500,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	want := fmt.Sprintf("Minimum payment is ₹%s (1 EMI).", "10466.37")
	if body["error"] != want {
		t.Fatalf("error=%v, want %v", body["error"], want)
	}
}

func TestPayEndpoint_UnknownLoanIs404(t *testing.T) {
	app, _, token := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/loans/does-not-exist/pay", token, fiber.Map{
		"amount": 10000,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestMyLoansEndpoint_CountAndLimitFlag(t *testing.T) {
	app, _, token := newTestApp(t)
	applyLoan(t, app, token)
	applyLoan(t, app, token)

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/loans/", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	data := body["data"].(map[string]interface{})
	if data["count"].(float64) != 2 {
		t.Fatalf("count=%v", data["count"])
	}
	if len(data["loans"].([]interface{})) != 2 {
		t.Fatalf("loans=%v", data["loans"])
	}
	if data["limit_reached"] != false {
		t.Fatalf("limit_reached=%v", data["limit_reached"])
	}

	applyLoan(t, app, token)

	_, body = doJSON(t, app, http.MethodGet, "/api/v1/loans/", token, nil)
	data = body["data"].(map[string]interface{})
	if data["count"].(float64) != 3 || data["limit_reached"] != true {
		t.Fatalf("count=%v limit_reached=%v", data["count"], data["limit_reached"])
	}
}

func TestHistoryEndpoint_ShowsLedger(t *testing.T) {
	app, _, token := newTestApp(t)
	loanID := applyLoan(t, app, token)

	if resp, body := doJSON(t, app, http.MethodPost, "/api/v1/loans/"+loanID+"/pay", token, fiber.Map{
		"amount": 11000,
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("pay status=%d body=%v", resp.StatusCode, body)
	}

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/loans/history", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	data := body["data"].(map[string]interface{})
	loans := data["loans"].([]interface{})
	if len(loans) != 1 {
		t.Fatalf("loans=%d", len(loans))
	}
	payments := loans[0].(map[string]interface{})["payments"].([]interface{})
	if len(payments) != 1 {
		t.Fatalf("payments=%d", len(payments))
	}
	p := payments[0].(map[string]interface{})
	if p["payment_no"].(float64) != 1 {
		t.Fatalf("payment_no=%v", p["payment_no"])
	}
}

func TestSummaryEndpoint(t *testing.T) {
	app, _, token := newTestApp(t)
	applyLoan(t, app, token)

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/loans/summary", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	data := body["data"].(map[string]interface{})
	sum := data["summary"].(map[string]interface{})
	if sum["total_loans"].(float64) != 1 || sum["open_loans"].(float64) != 1 {
		t.Fatalf("summary=%v", sum)
	}
}
