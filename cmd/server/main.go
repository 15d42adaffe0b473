package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appentitlement "github.com/featuregate/backend/internal/application/entitlement"
	"github.com/featuregate/backend/internal/infrastructure/billing"
	"github.com/featuregate/backend/internal/infrastructure/config"
	"github.com/featuregate/backend/internal/infrastructure/logger"
	"github.com/featuregate/backend/internal/infrastructure/persistence"
	"github.com/featuregate/backend/internal/interfaces/http/handler"
	"github.com/featuregate/backend/internal/interfaces/http/middleware"
	"github.com/featuregate/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting FeatureGate Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	featureRepo := persistence.NewFeatureRepository(db.DB)
	planRepo := persistence.NewPlanRepository(db.DB)
	usageRepo := persistence.NewUsageRepository(db.DB)
	subscriptionRepo := persistence.NewSubscriptionRepository(db.DB)

	// Plan resolution providers. Both are always registered so individual
	// requests can pin one via the provider query parameter; the config
	// selects which one unpinned requests use.
	providers := appentitlement.NewProviderRegistry()
	providers.Register("subscription", billing.NewSubscriptionProvider(
		subscriptionRepo, planRepo, cfg.Billing.DefaultPlanKey, log))
	if cfg.Billing.StaticPlanKey != "" {
		providers.Register("static", billing.NewStaticProvider(planRepo, cfg.Billing.StaticPlanKey))
	}
	providers.SetDefault(cfg.Billing.Provider)
	log.Info("Plan resolution configured",
		zap.String("provider", cfg.Billing.Provider),
		zap.String("default_plan", cfg.Billing.DefaultPlanKey),
	)

	// Initialize application services
	limiter := appentitlement.NewLimiter(providers, usageRepo, log)
	catalogService := appentitlement.NewCatalogService(featureRepo, planRepo, log)
	pruneService := appentitlement.NewPruneService(usageRepo, log)

	// Initialize HTTP handlers
	catalogHandler := handler.NewCatalogHandler(catalogService)
	quotaHandler := handler.NewQuotaHandler(limiter)
	maintenanceHandler := handler.NewMaintenanceHandler(pruneService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Catalog administration: feature and plan definitions, grants
	catalogRoutes := router.NewDomainGroup("catalog", "/catalog")
	catalogRoutes.GET("/features", catalogHandler.ListFeatures)
	catalogRoutes.GET("/features/:key", catalogHandler.GetFeature)
	catalogRoutes.PUT("/features/:key", catalogHandler.UpsertFeature)
	catalogRoutes.GET("/plans", catalogHandler.ListPlans)
	catalogRoutes.GET("/comparison", catalogHandler.ComparePlans)
	catalogRoutes.GET("/plans/:key", catalogHandler.GetPlan)
	catalogRoutes.GET("/plans/:key/features", catalogHandler.GetPlanFeatures)
	catalogRoutes.PUT("/plans/:key", catalogHandler.UpsertPlan)
	catalogRoutes.POST("/plans/:key/grants", catalogHandler.Grant)
	catalogRoutes.POST("/plans/:key/grants/batch", catalogHandler.GrantMany)
	catalogRoutes.DELETE("/plans/:key/grants/:feature_key", catalogHandler.Revoke)
	r.Register(catalogRoutes)

	// Per-subject quota checks and consumption
	quotaRoutes := router.NewDomainGroup("quota", "/subjects/:subject_type/:subject_id")
	quotaRoutes.GET("/plan", quotaHandler.GetPlan)
	quotaRoutes.GET("/usage", quotaHandler.GetUsageSummary)
	quotaRoutes.POST("/consume", quotaHandler.ConsumeMany)
	quotaRoutes.POST("/refund", quotaHandler.RefundMany)
	featureRoutes := quotaRoutes.Group("feature", "/features/:key")
	featureRoutes.GET("/quota", quotaHandler.GetQuota)
	featureRoutes.GET("/enabled", quotaHandler.GetEnabled)
	featureRoutes.GET("/check", quotaHandler.Check)
	featureRoutes.POST("/consume", quotaHandler.Consume)
	featureRoutes.POST("/refund", quotaHandler.Refund)
	featureRoutes.PUT("/usage", quotaHandler.SetUsage)
	featureRoutes.DELETE("/usage", quotaHandler.ClearUsage)
	r.Register(quotaRoutes)

	// Maintenance operations, optionally gated behind a plan feature
	adminRoutes := router.NewDomainGroup("admin", "/admin")
	if cfg.HTTP.AdminFeatureKey != "" {
		adminRoutes.Use(middleware.RequireFeature(cfg.HTTP.AdminFeatureKey, middleware.FeatureGateConfig{
			Limiter: limiter,
			Logger:  log,
		}))
		log.Info("Admin routes gated by feature",
			zap.String("feature", cfg.HTTP.AdminFeatureKey))
	}
	adminRoutes.POST("/usage/prune", maintenanceHandler.PruneUsage)
	r.Register(adminRoutes)

	// System endpoints
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)
	r.Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
