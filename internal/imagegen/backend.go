package imagegen

import (
	"context"
	"errors"
)

// ErrImageGenerationFailed - ошибка бэкенда генерации изображений.
var ErrImageGenerationFailed = errors.New("image generation failed")

// ErrImageSaveFailed - ошибка при сохранении файла.
var ErrImageSaveFailed = errors.New("image save failed")

// BackendRequest - запрос к бэкенду генерации одной картинки.
type BackendRequest struct {
	Prompt string
	Ratio  string
	// Seed 0 означает "на усмотрение бэкенда".
	Seed int64
	// ReferenceImage и ReferenceDescription задаются, если есть референс персонажа.
	ReferenceImage       []byte
	ReferenceDescription string
}

// BackendResult - ответ бэкенда.
type BackendResult struct {
	Data []byte
	// Seed, с которым фактически сгенерирована картинка.
	Seed int64
	// RevisedPrompt - переписанный бэкендом промпт, если он его возвращает.
	RevisedPrompt string
}

// Backend - конкретный сервис генерации изображений.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req BackendRequest) (*BackendResult, error)
}
