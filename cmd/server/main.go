package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aastreli/ml-service/internal/application/feedback"
	"github.com/aastreli/ml-service/internal/application/retraining"
	"github.com/aastreli/ml-service/internal/application/serving"
	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/infrastructure/artifact"
	"github.com/aastreli/ml-service/internal/infrastructure/cache"
	"github.com/aastreli/ml-service/internal/infrastructure/config"
	"github.com/aastreli/ml-service/internal/infrastructure/logger"
	"github.com/aastreli/ml-service/internal/infrastructure/persistence"
	"github.com/aastreli/ml-service/internal/infrastructure/telemetry"
	"github.com/aastreli/ml-service/internal/interfaces/http/handler"
	"github.com/aastreli/ml-service/internal/interfaces/http/middleware"
	"github.com/aastreli/ml-service/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
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

	log.Info("Starting model serving service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize OpenTelemetry tracing
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize database connection with a GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		if err := db.EnableTracing(); err != nil {
			log.Warn("Failed to enable database tracing", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Initialize repositories
	modelRepo := persistence.NewGormModelRepository(db.DB)
	versionRepo := persistence.NewGormModelVersionRepository(db.DB)
	deploymentRepo := persistence.NewGormDeploymentRepository(db.DB)
	bindingRepo := persistence.NewGormAssetBindingRepository(db.DB)
	feedbackRepo := persistence.NewGormFeedbackRepository(db.DB)

	// Initialize artifact storage backend
	var store registry.ArtifactStore
	switch cfg.Storage.Backend {
	case "s3":
		s3Store, err := artifact.NewS3Store(&cfg.Storage, artifact.WithS3Logger(log))
		if err != nil {
			log.Fatal("Failed to initialize S3 artifact store", zap.Error(err))
		}
		ensureCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := s3Store.EnsureBucket(ensureCtx); err != nil {
			cancel()
			log.Fatal("Failed to ensure artifact bucket", zap.Error(err))
		}
		cancel()
		store = s3Store
	default:
		localStore, err := artifact.NewLocalStore(cfg.Storage.BaseDir, artifact.WithLocalLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize local artifact store", zap.Error(err))
		}
		store = localStore
	}
	log.Info("Artifact store ready", zap.String("backend", cfg.Storage.Backend))
	loader := artifact.NewCodec(store)

	// Initialize idempotency store for feedback deduplication
	var idempotencyStore shared.IdempotencyStore
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisIdempotencyStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		idempotencyStore = redisStore
		log.Info("Redis idempotency store connected",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port),
		)
	} else {
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Initialize the serving registry and start its refresh loop
	servingRegistry := serving.NewRegistry(versionRepo, bindingRepo, loader, serving.RegistryConfig{
		CacheSize:       cfg.Registry.CacheSize,
		RefreshInterval: cfg.Registry.RefreshInterval,
		FallbackVersion: cfg.Registry.FallbackVersion,
	}, log)
	if err := servingRegistry.Start(context.Background()); err != nil {
		log.Fatal("Failed to start model registry", zap.Error(err))
	}
	defer servingRegistry.Stop()
	log.Info("Model registry started",
		zap.Int("cache_size", cfg.Registry.CacheSize),
		zap.Duration("refresh_interval", cfg.Registry.RefreshInterval),
		zap.Bool("fallback_loaded", servingRegistry.FallbackLoaded()),
	)

	// Initialize application services
	predictionService := serving.NewPredictionService(servingRegistry, cfg.Registry.TopK, log)
	deploymentService := serving.NewDeploymentService(versionRepo, deploymentRepo, bindingRepo, servingRegistry, log)
	feedbackService := feedback.NewService(feedbackRepo, idempotencyStore, log)
	retrainingPipeline := retraining.NewPipeline(feedbackRepo, modelRepo, versionRepo, loader, retraining.PipelineConfig{
		MinFeedback:        cfg.Retraining.MinFeedback,
		FeedbackMultiplier: cfg.Retraining.FeedbackMultiplier,
		ValidationRatio:    cfg.Retraining.ValidationRatio,
		MaxFeedbackRows:    cfg.Retraining.MaxFeedbackRows,
		Epochs:             cfg.Retraining.Epochs,
		LearningRate:       cfg.Retraining.LearningRate,
	}, log)

	// Initialize HTTP handlers
	predictionHandler := handler.NewPredictionHandler(predictionService)
	modelHandler := handler.NewModelHandler(deploymentService)
	retrainingHandler := handler.NewRetrainingHandler(retrainingPipeline)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService)
	systemHandler := handler.NewSystemHandler(db, servingRegistry)

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
	// 4. Tracing - Per-request spans (if enabled)
	// 5. Security - Add security headers
	// 6. CORS - Handle cross-origin requests
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
		}))
		engine.Use(middleware.SpanErrorMarker())
	}
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig()))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", systemHandler.Health)

	// System endpoints carry no tenant scope
	systemGroup := engine.Group("/api/v1")
	systemHandler.RegisterRoutes(systemGroup)

	// Prediction endpoints additionally require the internal service key
	predictionGroup := engine.Group("/api/v1",
		middleware.RequireTenant(),
		middleware.ServiceKeyAuth(cfg.Serving.ServiceKey),
	)
	predictionHandler.RegisterRoutes(predictionGroup)

	// Tenant-scoped management routes. Deployment and retraining are
	// service-to-service operations, so the whole group carries the
	// internal key check alongside the tenant scope.
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.RequireTenant(), middleware.ServiceKeyAuth(cfg.Serving.ServiceKey))
	r.Register(modelHandler).
		Register(retrainingHandler).
		Register(feedbackHandler)
	r.Setup()

	// Create HTTP server
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
