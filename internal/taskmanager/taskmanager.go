package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"fairytale-server/internal/models"
)

// ErrManagerClosed возвращается Submit после начала остановки.
var ErrManagerClosed = errors.New("task manager is shutting down")

var activeTasksGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "fairytale_taskmanager_active_tasks",
	Help: "Number of tasks currently running in the task manager.",
})

// TaskFunc - функция, выполняемая в задаче.
type TaskFunc func(ctx context.Context)

// task - запущенная задача.
type task struct {
	startedAt time.Time
	cancel    context.CancelFunc
}

// TaskManager запускает ограниченное число фоновых задач, по одной на ключ.
type TaskManager struct {
	mu       sync.Mutex
	tasks    map[string]*task
	maxTasks int
	closing  bool
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// Config содержит конфигурацию для TaskManager
type Config struct {
	MaxTasks int
}

// New создает новый экземпляр TaskManager
func New(cfg Config, logger *zap.Logger) *TaskManager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 4
	}
	return &TaskManager{
		tasks:    make(map[string]*task),
		maxTasks: maxTasks,
		logger:   logger.Named("TaskManager"),
	}
}

// Submit запускает задачу с ключом id. Контекст задачи не зависит от
// контекста вызывающего и отменяется только при принудительной остановке.
func (tm *TaskManager) Submit(id string, fn TaskFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.closing {
		return ErrManagerClosed
	}
	if _, exists := tm.tasks[id]; exists {
		return fmt.Errorf("%w: %s", models.ErrAlreadyQueued, id)
	}
	if len(tm.tasks) >= tm.maxTasks {
		return fmt.Errorf("%w: %d tasks running", models.ErrQueueFull, len(tm.tasks))
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	tm.tasks[id] = &task{startedAt: time.Now(), cancel: cancel}
	activeTasksGauge.Inc()

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		tm.runTask(taskCtx, id, fn)
	}()
	return nil
}

func (tm *TaskManager) runTask(ctx context.Context, id string, fn TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			tm.logger.Error("Task panicked", zap.String("task_id", id), zap.Any("panic", r))
		}
		tm.mu.Lock()
		if t, ok := tm.tasks[id]; ok {
			tm.logger.Debug("Task finished", zap.String("task_id", id), zap.Duration("duration", time.Since(t.startedAt)))
			delete(tm.tasks, id)
		}
		tm.mu.Unlock()
		activeTasksGauge.Dec()
	}()
	fn(ctx)
}

// Active возвращает число выполняющихся задач.
func (tm *TaskManager) Active() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.tasks)
}

// Shutdown перестает принимать задачи и ждет завершения запущенных.
// По истечении ctx отменяет оставшиеся задачи и возвращает ошибку.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.mu.Lock()
	tm.closing = true
	tm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		tm.mu.Lock()
		remaining := len(tm.tasks)
		for _, t := range tm.tasks {
			t.cancel()
		}
		tm.mu.Unlock()
		tm.logger.Warn("Shutdown deadline reached, cancelling tasks", zap.Int("remaining", remaining))
		return fmt.Errorf("timeout waiting for %d tasks: %w", remaining, ctx.Err())
	}
}
