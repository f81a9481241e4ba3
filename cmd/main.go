package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timber-cms-platform/internal/ai"
	"timber-cms-platform/internal/config"
	"timber-cms-platform/internal/logger"
	"timber-cms-platform/internal/queue"
	"timber-cms-platform/internal/telemetry"
	"timber-cms-platform/middleware"
	"timber-cms-platform/routes"
	"timber-cms-platform/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Tracing and metrics
	shutdownTracer, err := telemetry.InitTracer("timber-cms-platform", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracer init failed, continuing without tracing", "error", err)
	} else {
		defer shutdownTracer()
	}
	if _, err := telemetry.InitMetrics(); err != nil {
		logger.Warn("metrics init failed, continuing without metrics", "error", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Connect to Redis
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Asynq client for notification dispatch
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	// Generation provider
	provider, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.ProviderRPM, cfg.ProviderTimeout)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer provider.Close()

	// Service wiring
	settingsService := services.NewSettingsService(services.NewMongoSettingsStore(db), cfg.SettingsSecret)
	usageService := services.NewUsageService(settingsService, services.NewRedisWindowCounter(rdb))
	templateService := services.NewTemplateService(services.NewMongoTemplateStore(db))
	generationService := services.NewGenerationService(
		settingsService,
		usageService,
		templateService,
		provider,
		services.NewMongoRequestStore(db),
	)
	legalService := services.NewLegalService(
		services.NewMongoLegalStore(db),
		generationService,
		queue.NewNotifier(asynqClient),
	)
	exportService := services.NewLegalExportService(legalService)

	// Daily legal review sweep
	reviewScheduler := services.NewReviewScheduler(legalService)
	if err := reviewScheduler.Start(); err != nil {
		logger.Warn("failed to start review scheduler", "error", err)
	}
	defer reviewScheduler.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware("timber-cms-platform"))
	router.Use(middleware.APIRateLimit(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	authMiddleware := middleware.NewAuthMiddleware(cfg)
	routes.SetupAIRoutes(router, authMiddleware, settingsService, usageService, templateService, generationService)
	routes.SetupLegalRoutes(router, authMiddleware, legalService, exportService)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}
