package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	appintegration "github.com/atelier/backend/internal/application/integration"
	orderapp "github.com/atelier/backend/internal/application/order"
	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/infrastructure/billing"
	"github.com/atelier/backend/internal/infrastructure/cache"
	"github.com/atelier/backend/internal/infrastructure/config"
	"github.com/atelier/backend/internal/infrastructure/ledger"
	"github.com/atelier/backend/internal/infrastructure/logger"
	"github.com/atelier/backend/internal/infrastructure/payment"
	"github.com/atelier/backend/internal/infrastructure/persistence"
	"github.com/atelier/backend/internal/infrastructure/scheduler"
	"github.com/atelier/backend/internal/infrastructure/telemetry"
	"github.com/atelier/backend/internal/infrastructure/woocommerce"
	"github.com/atelier/backend/internal/interfaces/http/handler"
	"github.com/atelier/backend/internal/interfaces/http/middleware"
	"github.com/atelier/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
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

	log.Info("Starting order sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize telemetry providers. Both are no-ops when telemetry is
	// disabled, so the middleware below can be installed unconditionally.
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Bridge zap logs to the collector when enabled, keeping stdout output
	logsProvider, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTEL logs provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := logsProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down logs provider", zap.Error(err))
		}
	}()
	if logsProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: logsProvider,
			Level:          zapcore.InfoLevel,
		})
		log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, otelCore)
		}))
	}

	// Continuous profiling via Pyroscope
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Telemetry.ProfilerEnabled,
		ServerAddress:       cfg.Telemetry.ProfilerAddress,
		ApplicationName:     cfg.Telemetry.ServiceName,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

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

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DefaultDBTracingConfig(), log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	// Query and pool metrics. RegisterDBMetrics is a no-op when the meter
	// provider is disabled.
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	} else if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(context.Background())
		defer dbMetrics.Stop()
	}

	// Redis-backed reservation store for the idempotency ledger, with an
	// in-memory fallback for single-instance deployments
	storeFactory := cache.NewStoreFactory(cfg.Redis, cache.WithLogger(log))
	reservations, err := storeFactory.CreateReservationStore()
	if err != nil {
		log.Fatal("Failed to create reservation store", zap.Error(err))
	}

	// Shared guard that lets concurrent workers agree on a single executor
	// per effect before touching the receipt table
	effectGuard, err := storeFactory.CreateIdempotencyStore()
	if err != nil {
		log.Fatal("Failed to create effect guard store", zap.Error(err))
	}
	defer effectGuard.Close()

	// Initialize repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	transitionRepo := persistence.NewGormTransitionRepository(db.DB)
	receiptRepo := persistence.NewGormDispatchReceiptRepository(db.DB)
	syncRecordRepo := persistence.NewGormSyncRecordRepository(db.DB)
	deadLetterRepo := persistence.NewGormDeadLetterRepository(db.DB)

	// State machine over the transition log
	machine := order.NewStateMachine(transitionRepo)

	// WooCommerce storefront adapter: webhook normalization, catch-up
	// polling and status pushes all go through it
	wooCfg := woocommerce.NewConfig(
		cfg.WooCommerce.BaseURL,
		cfg.WooCommerce.ConsumerKey,
		cfg.WooCommerce.ConsumerSecret,
	)
	if cfg.WooCommerce.Timeout > 0 {
		wooCfg.TimeoutSeconds = int(cfg.WooCommerce.Timeout.Seconds())
	}
	if cfg.WooCommerce.PageSize > 0 {
		wooCfg.PageSize = cfg.WooCommerce.PageSize
	}
	storefrontAdapter, err := woocommerce.NewAdapter(wooCfg)
	if err != nil {
		log.Fatal("Failed to configure WooCommerce adapter", zap.Error(err))
	}
	var storefront integration.StorefrontPlatform = storefrontAdapter
	if !cfg.WooCommerce.StatusPush {
		storefront = readOnlyStorefront{storefrontAdapter}
		log.Info("Status push disabled, local transitions stay local")
	}

	// Downstream effect collaborators. Unconfigured services degrade to
	// no-ops so a minimal deployment still reconciles orders.
	var commission integration.CommissionService
	if cfg.Effects.CommissionURL != "" {
		client, err := billing.NewCommissionClient(cfg.Effects.CommissionURL, cfg.Effects.Timeout)
		if err != nil {
			log.Fatal("Failed to configure commission client", zap.Error(err))
		}
		commission = client
		log.Info("Commission service configured", zap.String("base_url", cfg.Effects.CommissionURL))
	} else {
		commission = disabledCommission{}
		log.Warn("Commission service not configured, accruals are skipped")
	}

	var payments integration.PaymentReconciliationService
	if cfg.Effects.PaymentURL != "" {
		client, err := payment.NewReconciliationClient(cfg.Effects.PaymentURL, cfg.Effects.Timeout)
		if err != nil {
			log.Fatal("Failed to configure payment reconciliation client", zap.Error(err))
		}
		payments = client
		log.Info("Payment reconciliation service configured", zap.String("base_url", cfg.Effects.PaymentURL))
	} else {
		payments = disabledPayments{}
		log.Warn("Payment reconciliation service not configured, checks are skipped")
	}

	// Effect dispatcher with exactly-once receipts
	dispatcher := appintegration.NewEffectDispatcher(
		receiptRepo,
		orderRepo,
		transitionRepo,
		commission,
		payments,
		storefront,
		appintegration.WithDispatcherGuard(effectGuard),
		appintegration.WithDispatcherLogger(log),
	)

	// Idempotency ledger: durable sync records plus short-lived in-flight
	// reservations
	idempotencyLedger := ledger.New(
		syncRecordRepo,
		reservations,
		ledger.WithLeaseTTL(cfg.Sync.LeaseTTL),
		ledger.WithLogger(log),
	)

	// Reconciler applies normalized storefront events to local orders
	reconciler := appintegration.NewReconciler(
		idempotencyLedger,
		orderRepo,
		customerRepo,
		transitionRepo,
		machine,
		dispatcher,
		appintegration.WithReconcilerLogger(log),
	)

	// Pipeline metrics with periodic backlog gauges
	var syncMetrics *telemetry.SyncMetrics
	if meterProvider.IsEnabled() {
		syncMetrics, err = telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
			Meter:           meterProvider.Meter("github.com/atelier/backend/internal/infrastructure/scheduler"),
			Logger:          log,
			BacklogProvider: telemetry.NewGormBacklogMetricsProvider(db.DB),
		})
		if err != nil {
			log.Fatal("Failed to initialize sync metrics", zap.Error(err))
		}
		syncMetrics.StartPeriodicCollection(context.Background(), time.Minute)
		defer syncMetrics.Stop()
	}

	// Sync coordinator: per-order serialized workers, retry with backoff,
	// dead-lettering, catch-up polling and effect retries
	coordinator := scheduler.NewSyncCoordinator(
		reconciler,
		dispatcher,
		storefront,
		deadLetterRepo,
		cfg.Sync,
		scheduler.WithSyncLogger(log),
		scheduler.WithSyncMetrics(syncMetrics),
	)
	if cfg.Sync.Enabled {
		if err := coordinator.Start(); err != nil {
			log.Fatal("Failed to start sync coordinator", zap.Error(err))
		}
		defer coordinator.Stop()
		log.Info("Sync coordinator started",
			zap.Int("workers", cfg.Sync.WorkerCount),
			zap.Bool("poll_enabled", cfg.Sync.PollEnabled),
		)
	} else {
		log.Warn("Sync coordinator disabled, webhook deliveries will be refused")
	}

	// Initialize application services
	orderService := orderapp.NewOrderService(orderRepo, customerRepo, transitionRepo, machine, dispatcher)
	syncService := appintegration.NewSyncService(syncRecordRepo, deadLetterRepo, coordinator)

	// Initialize HTTP handlers
	orderHandler := handler.NewOrderHandler(orderService)
	webhookHandler := handler.NewWebhookHandler(storefrontAdapter, coordinator)
	syncHandler := handler.NewSyncHandler(syncService)
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
	// 4. Tracing - OpenTelemetry spans
	// 5. Metrics - HTTP request metrics
	// 6. Security - Add security headers
	// 7. CORS - Handle cross-origin requests
	// 8. BodyLimit - Limit request body size
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetricsWithMeter(
		meterProvider.Meter("github.com/atelier/backend/internal/interfaces/http"),
		meterProvider.IsEnabled(),
	))
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

	// Webhook delivery throttling (if enabled). Scoped to the webhook path
	// so storefront redelivery storms cannot starve the operator API.
	if cfg.HTTP.WebhookRateLimit {
		webhookLimiter := middleware.NewRateLimiter(cfg.HTTP.WebhookRateLimitN, cfg.HTTP.WebhookRateWindow)
		engine.Use(pathScoped("/api/v1/webhooks", middleware.WebhookRateLimit(webhookLimiter)))
		log.Info("Webhook rate limiting enabled",
			zap.Int("requests", cfg.HTTP.WebhookRateLimitN),
			zap.Duration("window", cfg.HTTP.WebhookRateWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(orderHandler).
		Register(webhookHandler).
		Register(syncHandler).
		Register(systemHandler)
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

// pathScoped applies a middleware only to requests under the given prefix
func pathScoped(prefix string, mw gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, prefix) {
			mw(c)
			return
		}
		c.Next()
	}
}

// readOnlyStorefront suppresses status pushes while keeping order pulls
// available. Used when woocommerce.status_push is off.
type readOnlyStorefront struct {
	integration.StorefrontPlatform
}

func (s readOnlyStorefront) UpdateOrderStatus(ctx context.Context, externalOrderID string, status order.OrderStatus) error {
	return nil
}

// disabledCommission satisfies the commission port when no commission
// service is configured
type disabledCommission struct{}

func (disabledCommission) Accrue(ctx context.Context, orderID uuid.UUID, t *order.Transition) error {
	return nil
}

// disabledPayments satisfies the payment reconciliation port when no
// payment service is configured
type disabledPayments struct{}

func (disabledPayments) Check(ctx context.Context, orderID uuid.UUID, t *order.Transition) error {
	return nil
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
