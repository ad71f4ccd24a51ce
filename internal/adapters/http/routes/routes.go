package routes

import (
	"time"

	"quickloan-api/internal/adapters/http/handlers"
	"quickloan-api/internal/adapters/http/middleware"
	"quickloan-api/internal/adapters/persistence/repositories"
	"quickloan-api/internal/config"
	"quickloan-api/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// idempotencyTTL is how long a completed payment response is replayable
const idempotencyTTL = 24 * time.Hour

// Setup configures all routes for the application
func Setup(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config) {
	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	loanRepo := repositories.NewLoanRepository(db)

	// Initialize services
	mailService := services.NewMailService(cfg.Mail.ResendAPIKey, cfg.Mail.From)
	authService := services.NewAuthService(userRepo, refreshTokenRepo, cfg)
	loanService := services.NewLoanService(loanRepo, mailService)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService)
	loanHandler := handlers.NewLoanHandler(loanService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	// Auth routes (public, rate limited)
	authRoutes := apiV1.Group("/auth")
	authRoutes.Post("/register", middleware.AuthRateLimiter(), authHandler.Register)
	authRoutes.Post("/login", middleware.AuthRateLimiter(), authHandler.Login)
	authRoutes.Post("/refresh", authHandler.RefreshToken)
	authRoutes.Post("/logout", authHandler.Logout)
	authRoutes.Post("/logout-all", middleware.AuthMiddleware(cfg), authHandler.LogoutAll)
	authRoutes.Get("/me", middleware.AuthMiddleware(cfg), authHandler.Me)

	// Loan routes (protected)
	loanRoutes := apiV1.Group("/loans")
	loanRoutes.Use(middleware.AuthMiddleware(cfg))

	loanRoutes.Post("/apply", loanHandler.Apply)
	loanRoutes.Get("/", loanHandler.MyLoans)
	loanRoutes.Get("/history", loanHandler.History)
	loanRoutes.Get("/summary", loanHandler.Summary)
	loanRoutes.Get("/:id", loanHandler.GetLoan)

	// Payment gets idempotency protection when redis is configured
	if rdb != nil {
		loanRoutes.Post("/:id/pay", middleware.Idempotency(rdb, idempotencyTTL), loanHandler.Pay)
	} else {
		loanRoutes.Post("/:id/pay", loanHandler.Pay)
	}
}
