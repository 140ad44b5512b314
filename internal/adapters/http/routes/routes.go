package routes

import (
	"time"

	"circlepool/internal/adapters/http/handlers"
	"circlepool/internal/adapters/http/middleware"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/config"
	"circlepool/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Setup configures all routes and wires the service graph. The returned auto
// service is started and stopped by the caller.
func Setup(app *fiber.App, db *gorm.DB, cfg *config.Config) *services.RotationAutoService {
	// Repositories
	userRepo := repositories.NewUserRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	groupRepo := repositories.NewGroupRepository(db)
	memberRepo := repositories.NewMemberRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	lockRepo := repositories.NewLockRepository(db)
	eventRepo := repositories.NewEventRepository(db)

	// Services
	lockService := services.NewLockService(lockRepo, cfg.Lock.TTL)
	eventService := services.NewEventService(eventRepo)
	tierPolicy := services.NewTierPolicy()
	authService := services.NewAuthService(userRepo, refreshTokenRepo, cfg)
	depositService := services.NewDepositService(memberRepo, transactionRepo, lockService, eventService)
	groupService := services.NewGroupService(groupRepo, memberRepo, transactionRepo, lockService, depositService, tierPolicy)
	contributionService := services.NewContributionService(groupRepo, memberRepo, transactionRepo, lockService, eventService)
	rotationService := services.NewRotationService(groupRepo, memberRepo, transactionRepo, lockService, depositService, contributionService, eventService)
	paymentService := services.NewPaymentService(groupRepo, memberRepo, transactionRepo, lockService, depositService, tierPolicy)
	autoService := services.NewRotationAutoService(groupRepo, refreshTokenRepo, rotationService, lockService, cfg)

	// Handlers
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService)
	groupHandler := handlers.NewGroupHandler(groupService, depositService, rotationService, autoService)
	contributionHandler := handlers.NewContributionHandler(contributionService, groupService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	setupAuthRoutes(apiV1.Group("/auth"), authHandler, cfg)
	setupGroupRoutes(apiV1.Group("/groups"), groupHandler, cfg)
	setupTransactionRoutes(apiV1.Group("/transactions"), contributionHandler, cfg)

	// Pending confirmations for the authenticated user
	apiV1.Get("/me/pending-confirmations",
		middleware.AuthMiddleware(cfg),
		middleware.NoCacheHeaders(),
		contributionHandler.PendingConfirmations)

	// Payment provider callback
	apiV1.Post("/payments/callback",
		middleware.CallbackRateLimiter(),
		middleware.AuthMiddleware(cfg),
		paymentHandler.Callback)

	return autoService
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, handler *handlers.AuthHandler, cfg *config.Config) {
	router.Post("/register", middleware.AuthRateLimiter(), handler.Register)
	router.Post("/login", middleware.AuthRateLimiter(), handler.Login)
	router.Post("/refresh", middleware.AuthRateLimiter(), handler.RefreshToken)
	router.Post("/logout", handler.Logout)

	router.Get("/me", middleware.AuthMiddleware(cfg), handler.Me)
}

// setupGroupRoutes configures group lifecycle and rotation routes
func setupGroupRoutes(router fiber.Router, handler *handlers.GroupHandler, cfg *config.Config) {
	router.Use(middleware.AuthMiddleware(cfg))

	router.Post("/", handler.Create)
	router.Get("/:id", handler.Get)
	router.Get("/:id/members", middleware.PrivateCacheHeaders(30*time.Second), handler.Members)
	router.Get("/:id/round", middleware.NoCacheHeaders(), handler.Round)
	router.Get("/:id/transactions", handler.Transactions)
	router.Get("/:id/invite", handler.Invite)
	router.Post("/:id/join", handler.Join)
	router.Delete("/:id/members/:memberID", handler.RemoveMember)
	router.Post("/:id/advance", handler.Advance)
	router.Post("/:id/members/:memberID/return-deposit", handler.ReturnDeposit)
}

// setupTransactionRoutes configures dual-confirmation routes
func setupTransactionRoutes(router fiber.Router, handler *handlers.ContributionHandler, cfg *config.Config) {
	router.Use(middleware.AuthMiddleware(cfg))

	router.Post("/:id/confirm-sender", handler.ConfirmSender)
	router.Post("/:id/confirm-recipient", handler.ConfirmRecipient)
	router.Post("/:id/cancel", handler.Cancel)
}
