package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"quickloan-api/internal/adapters/persistence/models"

	"github.com/shopspring/decimal"
)

// Mailer is the outbound notification port consumed by the loan lifecycle.
// Delivery is best-effort: callers log failures and never roll back state.
type Mailer interface {
	SendLoanConfirmation(loan *models.Loan) error
	SendPaymentReceipt(loan *models.Loan, payment *models.Payment) error
	SendLoanClosed(loan *models.Loan) error
	SendPaymentReminder(loan *models.Loan) error
}

const resendEndpoint = "https://api.resend.com/emails"

// MailService sends transactional email via the Resend HTTP API
type MailService struct {
	apiKey  string
	from    string
	client  *http.Client
	enabled bool
}

// NewMailService creates a new mail service. Sending is disabled when no API
// key is configured; every Send* call then becomes a no-op error so callers
// can surface the advisory flag consistently.
func NewMailService(apiKey, from string) *MailService {
	if apiKey == "" {
		log.Println("⚠️ RESEND_API_KEY not set — transactional email disabled")
	}
	if from == "" {
		from = "QuickLoan <no-reply@quickloan.dev>"
	}
	return &MailService{
		apiKey:  apiKey,
		from:    from,
		client:  &http.Client{Timeout: 10 * time.Second},
		enabled: apiKey != "",
	}
}

// IsEnabled checks if mail delivery is configured
func (s *MailService) IsEnabled() bool {
	return s.enabled
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// send posts one message to the Resend API
func (s *MailService) send(to, subject, html string) error {
	if !s.enabled {
		return fmt.Errorf("mail disabled: no API key configured")
	}

	body, err := json.Marshal(resendRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, resendEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("resend returned status %d", resp.StatusCode)
	}

	log.Printf("✅ Email sent to %s — %s", to, subject)
	return nil
}

// formatINR renders an amount with Indian digit grouping (₹1,23,456.78)
func formatINR(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]

	// Last three digits form one group, the rest pair up.
	var grouped string
	if len(intPart) > 3 {
		head := intPart[:len(intPart)-3]
		var segs []string
		for len(head) > 2 {
			segs = append([]string{head[len(head)-2:]}, segs...)
			head = head[:len(head)-2]
		}
		if head != "" {
			segs = append([]string{head}, segs...)
		}
		grouped = strings.Join(segs, ",") + "," + intPart[len(intPart)-3:]
	} else {
		grouped = intPart
	}

	out := "₹" + grouped + "." + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}

var mailFuncs = template.FuncMap{
	"inr": formatINR,
	"date": func(v interface{}) string {
		switch t := v.(type) {
		case time.Time:
			return t.Format("02 January 2006, 15:04")
		case *time.Time:
			if t != nil {
				return t.Format("02 January 2006, 15:04")
			}
		}
		return ""
	},
}

var loanConfirmationTmpl = template.Must(template.New("loan_confirmation").Funcs(mailFuncs).Parse(`
<div style="font-family:Arial,sans-serif;max-width:580px;margin:0 auto;color:#1a1a2e;">
  <h2>Quick<span style="color:#4f8ef7;">Loan</span></h2>
  <p>Hello, {{.ApplicantName}}!</p>
  <p>Congratulations! Your loan application has been <strong style="color:#22c55e;">approved</strong>
  and {{inr .LoanAmount}} has been credited to your registered bank account.</p>
  <table cellpadding="6" style="width:100%;border-collapse:collapse;">
    <tr><td>Loan Amount</td><td align="right"><strong>{{inr .LoanAmount}}</strong></td></tr>
    <tr><td>Tenure</td><td align="right">{{.TenureMonths}} months</td></tr>
    <tr><td>Interest Rate</td><td align="right">{{.InterestRate}}% p.a.</td></tr>
    <tr><td>Monthly EMI</td><td align="right"><strong>{{inr .MonthlyEMI}}</strong></td></tr>
    <tr><td>Total Interest</td><td align="right">{{inr .TotalInterest}}</td></tr>
    <tr><td>Total Payment</td><td align="right">{{inr .TotalPayment}}</td></tr>
  </table>
  <p style="color:#666;">Applied on {{date .AppliedAt}} · Status: {{.Status}}</p>
</div>`))

type paymentReceiptData struct {
	Loan    *models.Loan
	Payment *models.Payment
}

var paymentReceiptTmpl = template.Must(template.New("payment_receipt").Funcs(mailFuncs).Parse(`
<div style="font-family:Arial,sans-serif;max-width:580px;margin:0 auto;color:#1a1a2e;">
  <h2>Quick<span style="color:#4f8ef7;">Loan</span> — Payment Receipt</h2>
  <p>Hello, {{.Loan.ApplicantName}}!</p>
  <p>We received your payment of <strong>{{inr .Payment.Amount}}</strong> towards your loan.</p>
  <table cellpadding="6" style="width:100%;border-collapse:collapse;">
    <tr><td>Payment No.</td><td align="right">#{{.Payment.PaymentNo}}</td></tr>
    <tr><td>Installments Cleared</td><td align="right">{{.Payment.InstallmentsCovered}}</td></tr>
    <tr><td>Progress</td><td align="right">{{.Loan.PaidInstallments}} / {{.Loan.TenureMonths}} EMIs</td></tr>
    <tr><td>Balance Before</td><td align="right">{{inr .Payment.BalanceBefore}}</td></tr>
    <tr><td>Balance After</td><td align="right"><strong>{{inr .Payment.BalanceAfter}}</strong></td></tr>
  </table>
  <p style="color:#666;">Paid on {{date .Payment.PaidAt}}</p>
</div>`))

var loanClosedTmpl = template.Must(template.New("loan_closed").Funcs(mailFuncs).Parse(`
<div style="font-family:Arial,sans-serif;max-width:580px;margin:0 auto;color:#1a1a2e;">
  <h2>Quick<span style="color:#4f8ef7;">Loan</span></h2>
  <p>Hello, {{.ApplicantName}}! 🎉</p>
  <p>Your loan of <strong>{{inr .LoanAmount}}</strong> is now fully repaid and
  <strong style="color:#22c55e;">closed</strong>. Thank you for banking with us.</p>
  <table cellpadding="6" style="width:100%;border-collapse:collapse;">
    <tr><td>Tenure</td><td align="right">{{.TenureMonths}} months</td></tr>
    <tr><td>Monthly EMI</td><td align="right">{{inr .MonthlyEMI}}</td></tr>
    <tr><td>Total Paid</td><td align="right"><strong>{{inr .TotalPayment}}</strong></td></tr>
    {{if .CompletedAt}}<tr><td>Closed On</td><td align="right">{{date .CompletedAt}}</td></tr>{{end}}
  </table>
</div>`))

var paymentReminderTmpl = template.Must(template.New("payment_reminder").Funcs(mailFuncs).Parse(`
<div style="font-family:Arial,sans-serif;max-width:580px;margin:0 auto;color:#1a1a2e;">
  <h2>Quick<span style="color:#4f8ef7;">Loan</span> — EMI Reminder</h2>
  <p>Hello, {{.ApplicantName}}!</p>
  <p>A friendly reminder that your monthly EMI of <strong>{{inr .MonthlyEMI}}</strong> is due.
  You have paid {{.PaidInstallments}} of {{.TenureMonths}} installments; your outstanding
  balance is <strong>{{inr .OutstandingBalance}}</strong>.</p>
</div>`))

// SendLoanConfirmation sends the approval + disbursal mail
func (s *MailService) SendLoanConfirmation(loan *models.Loan) error {
	var buf bytes.Buffer
	if err := loanConfirmationTmpl.Execute(&buf, loan); err != nil {
		return err
	}
	return s.send(loan.Email, "QuickLoan — Loan Approved & Amount Credited", buf.String())
}

// SendPaymentReceipt sends a receipt for one recorded payment
func (s *MailService) SendPaymentReceipt(loan *models.Loan, payment *models.Payment) error {
	var buf bytes.Buffer
	if err := paymentReceiptTmpl.Execute(&buf, paymentReceiptData{Loan: loan, Payment: payment}); err != nil {
		return err
	}
	subject := fmt.Sprintf("QuickLoan — Payment Receipt #%d", payment.PaymentNo)
	return s.send(loan.Email, subject, buf.String())
}

// SendLoanClosed sends the congratulation mail when the last EMI clears
func (s *MailService) SendLoanClosed(loan *models.Loan) error {
	var buf bytes.Buffer
	if err := loanClosedTmpl.Execute(&buf, loan); err != nil {
		return err
	}
	return s.send(loan.Email, "QuickLoan — Loan Fully Repaid 🎉", buf.String())
}

// SendPaymentReminder sends the daily due reminder for an open loan
func (s *MailService) SendPaymentReminder(loan *models.Loan) error {
	var buf bytes.Buffer
	if err := paymentReminderTmpl.Execute(&buf, loan); err != nil {
		return err
	}
	return s.send(loan.Email, "QuickLoan — Your EMI is due", buf.String())
}
