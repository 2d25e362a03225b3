package imagegen

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fairytale-server/internal/config"
)

// NewBackend выбирает бэкенд по IMAGE_BACKEND.
func NewBackend(cfg config.ImageConfig, logger *zap.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "sana":
		return NewSanaClient(cfg.SanaBaseURL, cfg.SanaTimeout, logger), nil
	case "openai":
		return NewOpenAIImageBackend(cfg.APIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAISize, logger), nil
	default:
		return nil, fmt.Errorf("unsupported image backend %q", cfg.Backend)
	}
}

// NewFromConfig собирает Service с бэкендом и файловым хранилищем из конфигурации.
func NewFromConfig(cfg config.ImageConfig, logger *zap.Logger) (*Service, error) {
	backend, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	storage, err := NewFileImageStorage(cfg.SavePath, cfg.PublicBaseURL, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Image generator initialized",
		zap.String("backend", backend.Name()),
		zap.String("save_path", cfg.SavePath),
		zap.Int("max_attempts", cfg.MaxAttempts),
	)
	return NewService(backend, storage, ServiceConfig{
		Ratio:          cfg.Ratio,
		MaxAttempts:    cfg.MaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		StyleSuffix:    cfg.StyleSuffix,
	}, logger), nil
}
