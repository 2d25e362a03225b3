package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fairytale-server/internal/models"
	"fairytale-server/internal/pipeline"
	"fairytale-server/internal/taskmanager"
)

type blockingRunner struct {
	started chan string
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, storyID string, _ models.StoryRequest) {
	r.started <- storyID
	select {
	case <-r.release:
	case <-ctx.Done():
	}
}

func TestLocalScheduler_RejectsWhenFull(t *testing.T) {
	tm := taskmanager.New(taskmanager.Config{MaxTasks: 1}, zap.NewNop())
	runner := &blockingRunner{started: make(chan string, 1), release: make(chan struct{})}
	scheduler := pipeline.NewLocalScheduler(tm, runner, zap.NewNop())

	requestCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Schedule(requestCtx, "first", scenarioRequest()))
	cancel()

	select {
	case id := <-runner.started:
		assert.Equal(t, "first", id)
	case <-time.After(time.Second):
		t.Fatal("run was not started")
	}

	err := scheduler.Schedule(context.Background(), "second", scenarioRequest())
	assert.ErrorIs(t, err, models.ErrQueueFull)

	close(runner.release)
	require.NoError(t, tm.Shutdown(context.Background()))
}
