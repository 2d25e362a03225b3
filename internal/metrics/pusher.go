package metrics

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Pusher периодически отправляет метрики воркера в Pushgateway.
// Воркер не слушает HTTP, поэтому scrape ему недоступен.
type Pusher struct {
	pusher   *push.Pusher
	interval time.Duration
	logger   *zap.Logger
}

// InstanceID возвращает метку экземпляра вида hostname-pid.
func InstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// NewPusher создает Pusher для job с группировкой по instance.
func NewPusher(url, job string, gatherer prometheus.Gatherer, interval time.Duration, logger *zap.Logger) *Pusher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	instance := InstanceID()
	logger = logger.Named("MetricsPusher")
	logger.Info("Initializing Pushgateway pusher",
		zap.String("url", url),
		zap.String("job", job),
		zap.String("instance", instance),
	)
	return &Pusher{
		pusher:   push.New(url, job).Gatherer(gatherer).Grouping("instance", instance),
		interval: interval,
		logger:   logger,
	}
}

// Push отправляет текущие значения метрик.
func (p *Pusher) Push(ctx context.Context) error {
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("could not push metrics to Pushgateway: %w", err)
	}
	return nil
}

// Run отправляет метрики каждые interval до отмены ctx.
// Последняя отправка делается после отмены, чтобы не потерять хвост.
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.Push(ctx); err != nil {
				p.logger.Warn("Metrics push failed", zap.Error(err))
			}
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Push(finalCtx); err != nil {
				p.logger.Warn("Final metrics push failed", zap.Error(err))
			}
			cancel()
			return
		}
	}
}
