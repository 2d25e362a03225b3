package pipeline

import (
	"context"

	"go.uber.org/zap"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
	"fairytale-server/internal/taskmanager"
)

// Runner выполняет прогон одной истории.
type Runner interface {
	Run(ctx context.Context, storyID string, req models.StoryRequest)
}

// LocalScheduler запускает прогоны в процессе через TaskManager.
type LocalScheduler struct {
	tasks  *taskmanager.TaskManager
	runner Runner
	logger *zap.Logger
}

// NewLocalScheduler создает планировщик поверх TaskManager.
func NewLocalScheduler(tasks *taskmanager.TaskManager, runner Runner, logger *zap.Logger) *LocalScheduler {
	return &LocalScheduler{tasks: tasks, runner: runner, logger: logger.Named("LocalScheduler")}
}

// Schedule ставит прогон в очередь. ctx вызывающего в прогон не передается.
func (s *LocalScheduler) Schedule(_ context.Context, storyID string, req models.StoryRequest) error {
	if err := s.tasks.Submit(storyID, func(ctx context.Context) {
		s.runner.Run(ctx, storyID, req)
	}); err != nil {
		s.logger.Warn("Story run rejected", zap.String("story_id", storyID), zap.Error(err))
		return err
	}
	s.logger.Debug("Story run scheduled", zap.String("story_id", storyID), zap.Int("active", s.tasks.Active()))
	return nil
}

var (
	_ interfaces.StoryScheduler = (*LocalScheduler)(nil)
	_ Runner                    = (*Orchestrator)(nil)
)
