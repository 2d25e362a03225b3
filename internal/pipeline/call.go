package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fairytale-server/internal/models"
)

type callResult[T any] struct {
	val T
	err error
}

// callWithTimeout запускает fn с дедлайном и ждет первого из двух событий:
// результата или истечения таймаута. Вызов, проигнорировавший дедлайн,
// бросается, его поздний результат уходит в буферизованный канал и теряется.
func callWithTimeout[T any](ctx context.Context, stage string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- callResult[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-callCtx.Done():
		pipelineAbandonedCalls.WithLabelValues(stage).Inc()
		var zero T
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%w: %s call exceeded %s", models.ErrUpstreamTimeout, stage, timeout)
		}
		return zero, fmt.Errorf("%s call cancelled: %w", stage, callCtx.Err())
	}
}
