package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type openAIImageBackend struct {
	client *openai.Client
	model  string
	size   string
	logger *zap.Logger
}

// NewOpenAIImageBackend создает бэкенд на OpenAI Images API.
// Референсное изображение API не принимает, поэтому облик персонажа
// передается только через описание в промпте.
func NewOpenAIImageBackend(apiKey, baseURL, model, size string, logger *zap.Logger) Backend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIImageBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		size:   size,
		logger: logger.Named("OpenAIImageBackend"),
	}
}

func (b *openAIImageBackend) Name() string { return "openai" }

func (b *openAIImageBackend) Generate(ctx context.Context, req BackendRequest) (*BackendResult, error) {
	resp, err := b.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          b.model,
		Size:           b.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			b.logger.Error("OpenAI image API error",
				zap.Int("status_code", apiErr.HTTPStatusCode),
				zap.String("type", apiErr.Type),
				zap.String("message", apiErr.Message),
			)
		}
		return nil, fmt.Errorf("%w: %w", ErrImageGenerationFailed, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: API returned empty data", ErrImageGenerationFailed)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image: %v", ErrImageGenerationFailed, err)
	}
	return &BackendResult{
		Data:          data,
		Seed:          req.Seed,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, nil
}

var _ Backend = (*openAIImageBackend)(nil)
