package taskmanager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fairytale-server/internal/models"
)

func TestTaskManager_RunsDetachedFromSubmitter(t *testing.T) {
	tm := New(Config{MaxTasks: 2}, zap.NewNop())

	submitCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	require.NoError(t, tm.Submit("a", func(ctx context.Context) {
		cancel() // отмена контекста отправителя не влияет на задачу
		time.Sleep(10 * time.Millisecond)
		done <- ctx.Err()
	}))
	<-submitCtx.Done()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("task did not finish")
	}
	require.NoError(t, tm.Shutdown(context.Background()))
}

func TestTaskManager_Limits(t *testing.T) {
	tm := New(Config{MaxTasks: 1}, zap.NewNop())
	release := make(chan struct{})

	require.NoError(t, tm.Submit("a", func(context.Context) { <-release }))
	assert.Equal(t, 1, tm.Active())

	err := tm.Submit("a", func(context.Context) {})
	assert.ErrorIs(t, err, models.ErrAlreadyQueued)

	err = tm.Submit("b", func(context.Context) {})
	assert.ErrorIs(t, err, models.ErrQueueFull)

	close(release)
	require.NoError(t, tm.Shutdown(context.Background()))
	assert.Equal(t, 0, tm.Active())

	assert.ErrorIs(t, tm.Submit("c", func(context.Context) {}), ErrManagerClosed)
}

func TestTaskManager_SlotFreedAfterPanic(t *testing.T) {
	tm := New(Config{MaxTasks: 1}, zap.NewNop())
	finished := make(chan struct{})
	require.NoError(t, tm.Submit("a", func(context.Context) {
		defer close(finished)
		panic("boom")
	}))
	<-finished

	require.Eventually(t, func() bool { return tm.Active() == 0 }, time.Second, 5*time.Millisecond)
	var ran atomic.Bool
	require.NoError(t, tm.Submit("b", func(context.Context) { ran.Store(true) }))
	require.NoError(t, tm.Shutdown(context.Background()))
	assert.True(t, ran.Load())
}

func TestTaskManager_ShutdownTimeoutCancelsTasks(t *testing.T) {
	tm := New(Config{MaxTasks: 1}, zap.NewNop())
	cancelled := make(chan struct{})
	require.NoError(t, tm.Submit("slow", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tm.Shutdown(ctx)
	assert.Error(t, err)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled")
	}
}
