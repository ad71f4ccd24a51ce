package services

import (
	"context"
	"log"
	"time"

	"quickloan-api/internal/adapters/persistence/repositories"

	"github.com/robfig/cron/v3"
)

// CronService runs scheduled jobs: the daily payment reminder sweep and the
// hourly expired-token cleanup.
type CronService struct {
	cron             *cron.Cron
	loanRepo         repositories.LoanRepository
	refreshTokenRepo repositories.RefreshTokenRepository
	mailer           Mailer
}

// NewCronService creates a new cron service
func NewCronService(
	loanRepo repositories.LoanRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
	mailer Mailer,
) *CronService {
	return &CronService{
		cron:             cron.New(),
		loanRepo:         loanRepo,
		refreshTokenRepo: refreshTokenRepo,
		mailer:           mailer,
	}
}

// Start registers the jobs and starts the scheduler
func (s *CronService) Start() error {
	// Daily reminder sweep at 08:30
	if _, err := s.cron.AddFunc("30 8 * * *", s.sendPaymentReminders); err != nil {
		return err
	}

	// Hourly cleanup of expired refresh tokens
	if _, err := s.cron.AddFunc("0 * * * *", s.cleanupExpiredTokens); err != nil {
		return err
	}

	s.cron.Start()
	log.Println("✅ Cron scheduler started (reminders 08:30 daily, token cleanup hourly)")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("🛑 Cron scheduler stopped")
}

// sendPaymentReminders mails every open loan's holder their next EMI
func (s *CronService) sendPaymentReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	loans, err := s.loanRepo.ListOpen(ctx)
	if err != nil {
		log.Printf("❌ Reminder sweep failed to list open loans: %v", err)
		return
	}

	sent := 0
	for _, loan := range loans {
		if err := s.mailer.SendPaymentReminder(loan); err != nil {
			log.Printf("⚠️ Reminder mail failed for loan %s: %v", loan.ID, err)
			continue
		}
		sent++
	}

	log.Printf("✅ Reminder sweep done: %d/%d mails sent", sent, len(loans))
}

// cleanupExpiredTokens deletes refresh tokens past their expiry
func (s *CronService) cleanupExpiredTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.refreshTokenRepo.DeleteExpired(ctx)
	if err != nil {
		log.Printf("❌ Token cleanup failed: %v", err)
		return
	}

	if deleted > 0 {
		log.Printf("✅ Token cleanup: removed %d expired refresh tokens", deleted)
	}
}
