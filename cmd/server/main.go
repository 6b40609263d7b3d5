package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/config"
	"github.com/smarttransit/seat-booking-engine/internal/database"
	"github.com/smarttransit/seat-booking-engine/internal/handlers"
	"github.com/smarttransit/seat-booking-engine/internal/inventory"
	"github.com/smarttransit/seat-booking-engine/internal/middleware"
	"github.com/smarttransit/seat-booking-engine/internal/models"
	"github.com/smarttransit/seat-booking-engine/internal/services"
	"github.com/smarttransit/seat-booking-engine/pkg/cache"
	"github.com/smarttransit/seat-booking-engine/pkg/jwt"
	"github.com/smarttransit/seat-booking-engine/pkg/validator"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit seat booking engine")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Redis is optional; without it the callback ledger alone dedupes replays
	var redisClient *redis.Client
	var marker services.CallbackCache
	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis.URL)
		cancel()
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		marker = cache.NewCallbackMarker(redisClient, cfg.Redis.MarkerTTL)
		logger.Info("Redis connection established")
	} else {
		logger.Warn("REDIS_URL not set, payment callback cache disabled")
	}

	if err := validator.RegisterGinValidations(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}

	// Initialize repositories
	logger.Info("Initializing services...")
	clock := clockwork.NewRealClock()
	tripRepo := database.NewTripInventoryRepository(db.DB, logger)
	bookingRepo := database.NewBookingRepository(db.DB)
	paymentRepo := database.NewPaymentRepository(db.DB, logger)
	settlementRepo := database.NewSettlementRepository(db.DB)
	disputeRepo := database.NewDisputeRepository(db.DB)

	// Initialize services
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(db.DB, logger)
	notifier := services.NewAsyncNotifier(services.NewLogSender(logger), 0, logger)

	inv := inventory.New(tripRepo, clock, inventory.Config{HoldRetention: cfg.Booking.HoldRetention}, logger)
	holdService := services.NewHoldService(inv, cfg.Booking, auditService, clock, logger)
	bookingService := services.NewBookingService(
		inv,
		bookingRepo,
		services.NewRandomPNR(cfg.Booking.PNRLength),
		notifier,
		auditService,
		cfg.Booking,
		cfg.Payment.Currency,
		logger,
	)
	paymentService := services.NewPaymentService(paymentRepo, bookingRepo, inv, marker, auditService, cfg.Payment, clock, logger)
	settlementService := services.NewSettlementService(
		settlementRepo,
		services.SettlementConfig{
			FeeRate:  models.BasisPoints(cfg.Settlement.FeeRateBps),
			Currency: cfg.Payment.Currency,
		},
		auditService,
		clock,
		logger,
	)
	disputeService := services.NewDisputeService(disputeRepo, bookingRepo, auditService, logger)

	// Start background jobs
	cronService := services.NewCronService(holdService, settlementService, cfg.Booking.SweepSchedule, cfg.Settlement.AutoSchedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Initialize handlers
	tripHandler := handlers.NewTripHandler(inv, auditService, logger)
	holdHandler := handlers.NewHoldHandler(holdService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, paymentService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	settlementHandler := handlers.NewSettlementHandler(settlementService, logger)
	disputeHandler := handlers.NewDisputeHandler(disputeService, logger)

	logger.Info("All services initialized successfully")

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(middleware.ClientInfo())

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db, redisClient))

	auth := middleware.AuthMiddleware(jwtService, logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public: seat maps for search screens and the provider callback
		v1.GET("/trips/:tripId/seats", tripHandler.GetSeats)
		v1.POST("/payments/callback", paymentHandler.Callback)

		trips := v1.Group("/trips")
		trips.Use(auth, middleware.RequireRole(models.RoleAgencyStaff, models.RoleAdmin))
		{
			trips.POST("", tripHandler.ScheduleTrip)
			trips.DELETE("/:tripId", tripHandler.ArchiveTrip)
		}

		holds := v1.Group("/holds")
		holds.Use(auth)
		{
			holds.POST("", holdHandler.CreateHold)
			holds.GET("/:holdId", holdHandler.GetHold)
			holds.POST("/:holdId/renew", holdHandler.RenewHold)
			holds.DELETE("/:holdId", holdHandler.ReleaseHold)
		}

		bookings := v1.Group("/bookings")
		bookings.Use(auth)
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.POST("/cancel", bookingHandler.CancelBooking)
			bookings.GET("/pnr/:pnr", bookingHandler.GetBookingByPNR)
			bookings.GET("/:bookingId", bookingHandler.GetBooking)
			bookings.POST("/:bookingId/refund", middleware.RequireRole(models.RoleAgencyStaff, models.RoleAdmin), bookingHandler.RefundBooking)
		}

		payments := v1.Group("/payments")
		payments.Use(auth, middleware.RequireRole(models.RoleAdmin))
		{
			payments.GET("/flagged", paymentHandler.ListFlagged)
			payments.POST("/flagged/:bookingId/resolve", paymentHandler.ResolveFlag)
		}

		settlements := v1.Group("/settlements")
		settlements.Use(auth)
		{
			settlements.POST("/compute", middleware.RequireRole(models.RoleAdmin), settlementHandler.Compute)
			settlements.PATCH("", middleware.RequireRole(models.RoleAdmin), settlementHandler.Update)
			settlements.GET("/:settlementId", settlementHandler.Get)
		}

		disputes := v1.Group("/disputes")
		disputes.Use(auth)
		{
			disputes.POST("", disputeHandler.Open)
			disputes.PATCH("/:disputeId", middleware.RequireRole(models.RoleAdmin), disputeHandler.Update)
			disputes.GET("/:disputeId", disputeHandler.Get)
		}

		admin := v1.Group("/admin")
		admin.Use(auth, middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/cron/status", func(c *gin.Context) {
				c.JSON(http.StatusOK, cronService.GetJobStatus())
			})
			admin.POST("/cron/expire-holds", func(c *gin.Context) {
				expired, err := holdService.Sweep(c.Request.Context())
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep_failed", "message": err.Error()})
					return
				}
				c.JSON(http.StatusOK, gin.H{"expired": expired})
			})
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop cron service after in-flight requests drained
	cronService.Stop()
	notifier.Wait()

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      c.Request.URL.RawQuery,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}
		if p, ok := middleware.GetPrincipal(c); ok {
			fields["user_id"] = p.UserID
			fields["roles"] = p.Roles
		}

		entry := logger.WithFields(fields)
		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		// Log based on status code
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler reports database and Redis reachability
func healthCheckHandler(db *database.PostgresDB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"redis":     "disabled",
			"version":   version,
			"timestamp": time.Now().Unix(),
		}

		if err := db.Health(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
			body["error"] = err.Error()
		}
		if redisClient != nil {
			body["redis"] = "healthy"
			if err := cache.HealthCheck(ctx, redisClient); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body["redis"] = "unhealthy"
			}
		}

		c.JSON(status, body)
	}
}
