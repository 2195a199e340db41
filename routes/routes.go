package routes

import (
	"PearlDental/cache"
	"PearlDental/config"
	"PearlDental/controllers"
	"PearlDental/handlers"
	"PearlDental/middlewares"
	"PearlDental/repositories"
	"PearlDental/services"
	"PearlDental/utils"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes initializes the routes and middleware for the server
func SetupRoutes(cache *cache.Cache, config *config.AppConfig, db *gorm.DB) http.Handler {
	// Set Gin to release mode
	gin.SetMode(gin.ReleaseMode)

	// Create a Gin router
	router := gin.Default()

	// Apply Bearer token validation to all routes
	router.Use(middlewares.ValidateBearerToken(config.GetBearerToken()))

	// Create and apply CORS middleware configuration
	corsConfig := &middlewares.CorsConfig{
		AllowedOrigins:   []string{"http://localhost:3000", "https://app.pearldental.example"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Access-Token"},
		AllowCredentials: true,
	}
	router.Use(middlewares.CorsMiddleware(corsConfig))

	// Apply rate limiter middleware
	router.Use(middlewares.NewRateLimiterMiddleware(middlewares.RateLimiterConfig{
		RequestsPerSecond: 15, // 15 requests per second
		Burst:             30, // Burst of 30
	}))

	// Apply logging middleware
	router.Use(middlewares.LoggingMiddleware())

	// Initialize repositories, services, and handlers
	balanceRepo := repositories.NewBalanceRepository(cache)
	workRepo := repositories.NewWorkRepository(cache)
	paymentRepo := repositories.NewPaymentRepository(cache)
	patientRepo := repositories.NewPatientRepository(cache)
	authRepo := repositories.NewAuthRepository()

	patientService := services.NewPatientService(patientRepo)
	workService := services.NewWorkService(workRepo)
	ledgerService := services.NewLedgerService(paymentRepo, balanceRepo, workRepo, patientRepo, utils.NewReceiptMailer())
	authService := services.NewAuthService(authRepo)

	patientHandler := handlers.NewPatientHandler(patientService)
	workHandler := handlers.NewWorkHandler(workService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	authHandler := handlers.NewAuthHandler(authService)

	// Register routes
	controllers.SetupLedgerRoutes(router, patientHandler, workHandler, ledgerHandler)

	authController := controllers.NewAuthController(authHandler)
	authController.RegisterRoutes(router)

	controllers.SetupRootRoute(router)

	return router
}
