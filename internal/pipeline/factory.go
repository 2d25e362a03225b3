package pipeline

import (
	"go.uber.org/zap"

	"fairytale-server/internal/config"
	"fairytale-server/internal/imagegen"
	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/storygen"
)

// NewFromConfig собирает Orchestrator с генераторами текста и иллюстраций из конфигурации.
func NewFromConfig(cfg *config.Config, repo interfaces.StoryRepository, notifier interfaces.StatusNotifier, logger *zap.Logger) (*Orchestrator, error) {
	writer, err := storygen.NewFromConfig(cfg.TextAI, logger)
	if err != nil {
		return nil, err
	}
	images, err := imagegen.NewFromConfig(cfg.Image, logger)
	if err != nil {
		return nil, err
	}
	return NewOrchestrator(repo, writer, images, notifier, Config{
		TextTimeout:      cfg.Pipeline.TextTimeout,
		ImageTimeout:     cfg.Pipeline.ImageTimeout,
		StoreTimeout:     cfg.Pipeline.StoreTimeout,
		ClaimTTL:         cfg.Pipeline.ClaimTTL,
		PlaceholderImage: cfg.Pipeline.PlaceholderImage,
	}, logger), nil
}
