package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

// StoryService - прием заявок и чтение прогресса.
type StoryService interface {
	// CreateStory проверяет заявку, создает запись и ставит генерацию в фон.
	CreateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error)
	GetStory(ctx context.Context, id string) (*models.Story, error)
	// DeleteStory удаляет запись. Отсутствующая запись - models.ErrNotFound.
	DeleteStory(ctx context.Context, id string) error
}

type storyServiceImpl struct {
	repo      interfaces.StoryRepository
	scheduler interfaces.StoryScheduler
	logger    *zap.Logger
	now       func() time.Time
}

// NewStoryService создает новый экземпляр StoryService.
func NewStoryService(repo interfaces.StoryRepository, scheduler interfaces.StoryScheduler, logger *zap.Logger) StoryService {
	return &storyServiceImpl{
		repo:      repo,
		scheduler: scheduler,
		logger:    logger.Named("StoryService"),
		now:       time.Now,
	}
}

func (s *storyServiceImpl) CreateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		s.logger.Info("Story request rejected", zap.Error(err))
		return nil, err
	}

	now := s.now().UTC()
	story := &models.Story{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    models.StatusGeneratingStory,
		CreatedAt: now,
		UpdatedAt: now,
	}
	log := s.logger.With(zap.String("story_id", story.ID))

	if err := s.repo.CreateStory(ctx, story); err != nil {
		log.Error("Failed to create story record", zap.Error(err))
		return nil, err
	}

	if err := s.scheduler.Schedule(ctx, story.ID, req); err != nil {
		log.Warn("Story generation was not scheduled, marking failed", zap.Error(err))
		// Запись не должна зависнуть в generating_story
		if _, updErr := s.repo.UpdateStory(context.WithoutCancel(ctx), story.ID, models.StoryUpdate{
			Status: models.StatusPtr(models.StatusFailed),
			Error:  models.StringPtr("generation was not started: server is busy"),
		}); updErr != nil {
			log.Error("Failed to mark unscheduled story failed", zap.Error(updErr))
		}
		if !errors.Is(err, models.ErrQueueFull) {
			err = fmt.Errorf("%w: %v", models.ErrQueueFull, err)
		}
		return nil, err
	}

	log.Info("Story accepted",
		zap.String("language", string(req.Language)),
		zap.Int("page_count", req.PageCount),
	)
	return story, nil
}

func (s *storyServiceImpl) GetStory(ctx context.Context, id string) (*models.Story, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: story id is empty", models.ErrInvalidInput)
	}
	return s.repo.GetStory(ctx, id)
}

func (s *storyServiceImpl) DeleteStory(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: story id is empty", models.ErrInvalidInput)
	}
	deleted, err := s.repo.DeleteStory(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return models.ErrNotFound
	}
	s.logger.Info("Story deleted by admin request", zap.String("story_id", id))
	return nil
}

var _ StoryService = (*storyServiceImpl)(nil)
