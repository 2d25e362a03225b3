package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"fairytale-server/internal/config"
	"fairytale-server/internal/database"
	"fairytale-server/internal/logger"
	"fairytale-server/internal/messaging"
	"fairytale-server/internal/metrics"
	"fairytale-server/internal/models"
	"fairytale-server/internal/pipeline"
	"fairytale-server/internal/taskmanager"
)

const (
	metricsJobName = "fairytale_worker"
	sessionBackoff = 5 * time.Second
)

// sessionNotifier публикует статусы через notifier текущего подключения.
// При переподключении notifier подменяется, оркестратор остается тем же.
type sessionNotifier struct {
	current atomic.Pointer[messaging.StatusNotifier]
}

func (n *sessionNotifier) NotifyStatus(ctx context.Context, event models.StoryStatusEvent) error {
	notifier := n.current.Load()
	if notifier == nil {
		return errors.New("status notifier is not connected")
	}
	return notifier.NotifyStatus(ctx, event)
}

// worker связывает очередь задач с оркестратором.
type worker struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	notifier     *sessionNotifier
	tasks        *taskmanager.TaskManager
	logger       *zap.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.RabbitMQ.URL == "" {
		log.Fatalf("RABBITMQ_URL is required for the worker")
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	zap.ReplaceGlobals(appLogger)
	appLogger.Info("Starting fairytale worker", zap.String("env", cfg.AppEnv), zap.String("queue", cfg.RabbitMQ.TaskQueue))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := database.NewStoryRepository(ctx, cfg.Storage, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize story storage", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error("Failed to close story storage", zap.Error(err))
		}
	}()

	notifier := &sessionNotifier{}
	orchestrator, err := pipeline.NewFromConfig(cfg, repo, notifier, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize generation pipeline", zap.Error(err))
	}

	// Prefetch ограничивает число неподтвержденных сообщений, а значит и прогонов
	maxTasks := cfg.RabbitMQ.Prefetch
	if maxTasks <= 0 {
		maxTasks = cfg.Pipeline.MaxConcurrentRuns
	}
	w := &worker{
		cfg:          cfg,
		orchestrator: orchestrator,
		notifier:     notifier,
		tasks:        taskmanager.New(taskmanager.Config{MaxTasks: maxTasks}, appLogger),
		logger:       appLogger,
	}

	var wg sync.WaitGroup
	pushCtx, stopPush := context.WithCancel(context.Background())
	if cfg.PushGatewayURL != "" {
		pusher := metrics.NewPusher(cfg.PushGatewayURL, metricsJobName, prometheus.DefaultGatherer, cfg.PushInterval, appLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pusher.Run(pushCtx)
		}()
	}

	for ctx.Err() == nil {
		err := w.runSession(ctx)
		if err == nil || ctx.Err() != nil {
			break
		}
		appLogger.Error("Worker session ended, reconnecting", zap.Error(err), zap.Duration("backoff", sessionBackoff))
		select {
		case <-time.After(sessionBackoff):
		case <-ctx.Done():
		}
	}

	// Прогоны предыдущих сессий, если соединение упало перед остановкой
	w.drain()
	stopPush()
	wg.Wait()
	appLogger.Info("Worker exited")
}

// runSession обслуживает одно подключение к RabbitMQ до отмены ctx или разрыва.
// При отмене ctx дожидается прогонов до закрытия канала, чтобы успеть подтвердить сообщения.
func (w *worker) runSession(ctx context.Context) error {
	conn, err := messaging.Connect(ctx, w.cfg.RabbitMQ.URL, w.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	statusNotifier, err := messaging.NewStatusNotifier(conn, w.cfg.RabbitMQ.StatusQueue, w.logger)
	if err != nil {
		return err
	}
	w.notifier.current.Store(statusNotifier)
	defer func() {
		w.notifier.current.CompareAndSwap(statusNotifier, nil)
		_ = statusNotifier.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	consumer := messaging.NewTaskConsumer(w.orchestrator, w.tasks, w.logger)
	err = consumer.Consume(ctx, ch, w.cfg.RabbitMQ.TaskQueue, w.cfg.RabbitMQ.ConsumerName, w.cfg.RabbitMQ.Prefetch)
	if err == nil {
		w.drain()
	}
	return err
}

func (w *worker) drain() {
	w.logger.Info("Waiting for story runs to finish...", zap.Int("active", w.tasks.Active()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.cfg.Pipeline.ShutdownTimeout)
	defer cancel()
	if err := w.tasks.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn("Story runs were interrupted by shutdown", zap.Error(err))
	}
}
