package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rabbitmq/amqp091-go"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"fairytale-server/internal/config"
	"fairytale-server/internal/database"
	"fairytale-server/internal/handler"
	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/logger"
	"fairytale-server/internal/messaging"
	"fairytale-server/internal/middleware"
	"fairytale-server/internal/pipeline"
	"fairytale-server/internal/service"
	"fairytale-server/internal/taskmanager"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	zap.ReplaceGlobals(appLogger)

	appLogger.Info("Starting fairytale server",
		zap.String("env", cfg.AppEnv),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("dispatch", cfg.Pipeline.Dispatch),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	repo, err := database.NewStoryRepository(ctx, cfg.Storage, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize story storage", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error("Failed to close story storage", zap.Error(err))
		}
	}()

	// --- RabbitMQ (необязателен при локальном запуске) ---
	var mqConn *amqp091.Connection
	if cfg.RabbitMQ.URL != "" {
		mqConn, err = messaging.Connect(ctx, cfg.RabbitMQ.URL, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()
	}

	var tasks *taskmanager.TaskManager
	var scheduler interfaces.StoryScheduler
	if strings.EqualFold(cfg.Pipeline.Dispatch, "rabbitmq") {
		publisher, err := messaging.NewTaskPublisher(mqConn, cfg.RabbitMQ.TaskQueue, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to create task publisher", zap.Error(err))
		}
		defer publisher.Close()
		scheduler = publisher
		appLogger.Info("Story runs are dispatched to workers", zap.String("queue", cfg.RabbitMQ.TaskQueue))
	} else {
		var notifier interfaces.StatusNotifier = messaging.NopNotifier{}
		if mqConn != nil {
			statusNotifier, err := messaging.NewStatusNotifier(mqConn, cfg.RabbitMQ.StatusQueue, appLogger)
			if err != nil {
				appLogger.Fatal("Failed to create status notifier", zap.Error(err))
			}
			defer statusNotifier.Close()
			notifier = statusNotifier
		}
		orchestrator, err := pipeline.NewFromConfig(cfg, repo, notifier, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize generation pipeline", zap.Error(err))
		}
		tasks = taskmanager.New(taskmanager.Config{MaxTasks: cfg.Pipeline.MaxConcurrentRuns}, appLogger)
		scheduler = pipeline.NewLocalScheduler(tasks, orchestrator, appLogger)
		appLogger.Info("Story runs are executed in process", zap.Int("max_concurrent_runs", cfg.Pipeline.MaxConcurrentRuns))
	}

	storyService := service.NewStoryService(repo, scheduler, appLogger)
	storyHandler := handler.NewStoryHandler(storyService, appLogger)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.AppEnv == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.GinZapLogger(appLogger))
	router.Use(gin.Recovery())

	// Middleware должна быть подключена до регистрации маршрутов, иначе они не попадут в метрики.
	// Заодно регистрирует /metrics.
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
		appLogger.Info("CORS_ALLOWED_ORIGINS is empty, allowing all origins")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	// Сгенерированные иллюстрации отдаются тем же процессом
	router.Static("/images", cfg.Image.SavePath)

	// INTAKE_RATE_LIMIT=0 отключает ограничение
	var intake []gin.HandlerFunc
	if cfg.IntakeRateLimit > 0 {
		intake = append(intake, middleware.IntakeRateLimiter(cfg.IntakeRateLimit, cfg.IntakeRateWindow, appLogger))
	}
	storyHandler.RegisterRoutes(router, intake...)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	case err := <-serverErr:
		appLogger.Error("HTTP server listen error", zap.Error(err))
		exitCode = 1
	}

	// Сначала перестаем принимать заявки, затем дожидаемся прогонов
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if tasks != nil {
		if err := tasks.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Story runs were interrupted by shutdown", zap.Error(err))
		}
	}
	appLogger.Info("Server exited")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
