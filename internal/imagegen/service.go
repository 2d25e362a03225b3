package imagegen

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

var (
	imageRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairytale_image_requests_total",
			Help: "Total number of image backend requests.",
		},
		[]string{"backend", "status"},
	)
	imageRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fairytale_image_request_duration_seconds",
			Help:    "Duration of image backend requests.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"backend"},
	)
	imageRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairytale_image_retries_total",
			Help: "Retries of image backend requests after a failed attempt.",
		},
		[]string{"backend"},
	)
)

// ServiceConfig - параметры генерации иллюстраций.
type ServiceConfig struct {
	Ratio          string
	MaxAttempts    int
	RetryBaseDelay time.Duration
	StyleSuffix    string
}

// Service реализует interfaces.ImageGenerator поверх Backend и ImageStorage.
type Service struct {
	backend Backend
	storage ImageStorage
	prompts PromptBuilder
	cfg     ServiceConfig
	logger  *zap.Logger
	// sleep подменяется в тестах.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService создает сервис генерации иллюстраций.
func NewService(backend Backend, storage ImageStorage, cfg ServiceConfig, logger *zap.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Service{
		backend: backend,
		storage: storage,
		prompts: NewPromptBuilder(cfg.StyleSuffix),
		cfg:     cfg,
		logger:  logger.Named("ImageService"),
		sleep:   sleepCtx,
	}
}

// Generate генерирует и сохраняет одну иллюстрацию.
// Без референса возвращает артефакт, по которому следующие страницы
// воспроизводят того же персонажа.
func (s *Service) Generate(ctx context.Context, p interfaces.ImagePrompt, ref *models.CharacterReference) (*models.GeneratedImage, error) {
	log := s.logger.With(
		zap.String("story_id", p.StoryID),
		zap.Int("page_index", p.PageIndex),
		zap.String("backend", s.backend.Name()),
	)

	prompt := s.prompts.Build(p, ref)
	req := BackendRequest{
		Prompt: prompt,
		Ratio:  s.cfg.Ratio,
		Seed:   StorySeed(p.StoryID),
	}
	if ref != nil {
		if ref.Seed != 0 {
			req.Seed = ref.Seed
		}
		req.ReferenceImage = ref.Data
		req.ReferenceDescription = ref.Description
	}
	log.Debug("Full prompt for image backend", zap.String("prompt", prompt))

	res, err := s.generateWithRetry(ctx, req, log)
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	url, err := s.storage.Save(ctx, p.StoryID, p.PageIndex, res.Data)
	if err != nil {
		log.Error("Failed to store image", zap.Error(err))
		return nil, classifyError(ctx, err)
	}
	log.Info("Image generated", zap.String("url", url), zap.Int("size_bytes", len(res.Data)))

	image := &models.GeneratedImage{URL: url}
	if ref == nil {
		if res.RevisedPrompt != "" {
			log.Debug("Backend revised prompt", zap.String("revised_prompt", res.RevisedPrompt))
		}
		// В описание героя попадает только он сам: сцена первой страницы
		// не должна повторяться на остальных.
		image.Artifact = &models.CharacterReference{
			ImageURL:    url,
			Seed:        res.Seed,
			Description: CharacterIdentity(p),
			Data:        res.Data,
		}
	}
	return image, nil
}

// generateWithRetry выполняет до MaxAttempts попыток с экспоненциальной
// задержкой и джиттером между ними.
func (s *Service) generateWithRetry(ctx context.Context, req BackendRequest, log *zap.Logger) (*BackendResult, error) {
	backendName := s.backend.Name()
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		res, err := s.backend.Generate(ctx, req)
		imageRequestDuration.WithLabelValues(backendName).Observe(time.Since(start).Seconds())
		if err == nil {
			imageRequestsTotal.WithLabelValues(backendName, "success").Inc()
			return res, nil
		}
		imageRequestsTotal.WithLabelValues(backendName, "error").Inc()
		lastErr = err
		log.Warn("Image backend call failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxAttempts),
			zap.Error(err),
		)

		if attempt == s.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}
		wait := backoffDelay(s.cfg.RetryBaseDelay, attempt)
		log.Info("Waiting before next attempt", zap.Duration("delay", wait))
		if err := s.sleep(ctx, wait); err != nil {
			return nil, lastErr
		}
		imageRetriesTotal.WithLabelValues(backendName).Inc()
	}
	return nil, lastErr
}

// backoffDelay возвращает base*2^(attempt-1) с джиттером +-10%, не меньше base.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	jitter := delay * 0.1
	delay += jitter * (rand.Float64()*2 - 1)
	wait := time.Duration(delay)
	if wait < base {
		wait = base
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StorySeed возвращает стабильный seed для истории, чтобы повторная
// генерация первой страницы давала того же персонажа.
func StorySeed(storyID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(storyID))
	return int64(h.Sum64()&math.MaxInt32) + 1
}

func classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrUpstreamError, err)
}

var _ interfaces.ImageGenerator = (*Service)(nil)
