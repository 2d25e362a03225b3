package interfaces

import (
	"context"
	"time"

	"fairytale-server/internal/models"
)

// StoryRepository - хранилище состояния генерации историй.
type StoryRepository interface {
	// CreateStory сохраняет новую запись.
	CreateStory(ctx context.Context, story *models.Story) error
	// UpdateStory сливает частичное обновление с записью и возвращает результат.
	// Отсутствующая запись - models.ErrNotFound.
	UpdateStory(ctx context.Context, id string, update models.StoryUpdate) (*models.Story, error)
	// GetStory возвращает запись или models.ErrNotFound.
	GetStory(ctx context.Context, id string) (*models.Story, error)
	// DeleteStory удаляет запись. Возвращает false, если записи не было.
	DeleteStory(ctx context.Context, id string) (bool, error)
	// ClaimStory закрепляет историю за владельцем на ttl.
	// Возвращает false, если история уже закреплена за другим владельцем.
	ClaimStory(ctx context.Context, id, owner string, ttl time.Duration) (bool, error)
	// Close освобождает ресурсы хранилища.
	Close() error
}

// TextGenerator генерирует структурированный текст истории.
// Ошибки: models.ErrUpstreamTimeout, models.ErrInvalidResponse, models.ErrUpstreamError.
type TextGenerator interface {
	Generate(ctx context.Context, req models.StoryRequest) (*models.StoryContent, error)
}

// ImagePrompt - данные для построения промпта одной иллюстрации.
type ImagePrompt struct {
	StoryID   string
	PageIndex int
	Scene     string
	Style     string
	ChildName string
	ChildAge  int
	Language  models.Language
}

// ImageGenerator генерирует одну иллюстрацию.
// Ошибки: models.ErrUpstreamTimeout, models.ErrUpstreamError.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt ImagePrompt, reference *models.CharacterReference) (*models.GeneratedImage, error)
}

// StatusNotifier публикует события о завершении генерации.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, event models.StoryStatusEvent) error
}

// StoryScheduler запускает генерацию истории в фоне.
type StoryScheduler interface {
	Schedule(ctx context.Context, storyID string, req models.StoryRequest) error
}
