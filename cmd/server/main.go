package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"quickloan-api/internal/adapters/http/middleware"
	"quickloan-api/internal/adapters/http/routes"
	"quickloan-api/internal/adapters/persistence/models"
	"quickloan-api/internal/adapters/persistence/repositories"
	"quickloan-api/internal/config"
	"quickloan-api/internal/core/services"

	"github.com/gofiber/fiber/v2"

	_ "quickloan-api/docs" // Swagger docs
)

// @title QuickLoan API
// @version 1.0
// @description Loan origination and repayment tracking API
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@quickloan.dev

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host api.quickloan.dev
// @BasePath /api/v1
// @schemes https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer config.CloseDatabase()

	// Auto migrate (creates tables if not exist)
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to auto migrate: %v", err)
	}
	log.Println("✅ Database migration completed")

	// Redis is optional; without it payment idempotency is disabled
	rdb, err := config.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to redis: %v", err)
	}

	// Scheduled jobs: payment reminders (08:30 daily) and token cleanup
	mailService := services.NewMailService(cfg.Mail.ResendAPIKey, cfg.Mail.From)
	cronService := services.NewCronService(
		repositories.NewLoanRepository(db),
		repositories.NewRefreshTokenRepository(db),
		mailService,
	)
	if err := cronService.Start(); err != nil {
		log.Fatalf("❌ Failed to start cron scheduler: %v", err)
	}
	defer cronService.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "QuickLoan API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	// Setup middlewares
	middleware.Setup(app, cfg)

	// Setup routes (pass db, redis and cfg for dependency injection)
	routes.Setup(app, db, rdb, cfg)

	// Graceful shutdown
	go gracefulShutdown(app)

	// Start server
	log.Printf("🚀 Server starting on port %s [MODE: %s]", cfg.Port, cfg.AppMode)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("❌ Error during shutdown: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}
