package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fairytale-server/internal/mocks"
	"fairytale-server/internal/models"
	"fairytale-server/internal/service"
)

func validRequest() models.StoryRequest {
	return models.StoryRequest{
		ChildName:         " Aya ",
		ChildAge:          5,
		Theme:             "character-courage",
		Language:          "EN",
		IllustrationStyle: "watercolor",
	}
}

func TestStoryService_CreateStory(t *testing.T) {
	repo := mocks.NewMockStoryRepository(t)
	scheduler := mocks.NewMockStoryScheduler(t)
	svc := service.NewStoryService(repo, scheduler, zap.NewNop())

	var created *models.Story
	repo.On("CreateStory", mock.Anything, mock.AnythingOfType("*models.Story")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*models.Story) }).
		Return(nil).Once()
	scheduler.On("Schedule", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(r models.StoryRequest) bool {
		return r.ChildName == "Aya" && r.Language == models.LanguageEN && r.PageCount == models.DefaultPageCount
	})).Return(nil).Once()

	story, err := svc.CreateStory(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, story.ID)
	assert.Equal(t, models.StatusGeneratingStory, story.Status)
	assert.Same(t, created, story)
	repo.AssertExpectations(t)
	scheduler.AssertExpectations(t)
}

func TestStoryService_CreateStory_InvalidRequest(t *testing.T) {
	repo := mocks.NewMockStoryRepository(t)
	scheduler := mocks.NewMockStoryScheduler(t)
	svc := service.NewStoryService(repo, scheduler, zap.NewNop())

	req := validRequest()
	req.ChildAge = 1
	_, err := svc.CreateStory(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	repo.AssertNotCalled(t, "CreateStory", mock.Anything, mock.Anything)
	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything)
}

func TestStoryService_CreateStory_QueueFullMarksFailed(t *testing.T) {
	repo := mocks.NewMockStoryRepository(t)
	scheduler := mocks.NewMockStoryScheduler(t)
	svc := service.NewStoryService(repo, scheduler, zap.NewNop())

	repo.On("CreateStory", mock.Anything, mock.Anything).Return(nil).Once()
	scheduler.On("Schedule", mock.Anything, mock.Anything, mock.Anything).Return(models.ErrQueueFull).Once()
	repo.On("UpdateStory", mock.Anything, mock.Anything, mock.MatchedBy(func(u models.StoryUpdate) bool {
		return u.Status != nil && *u.Status == models.StatusFailed && u.Error != nil
	})).Return(&models.Story{}, nil).Once()

	_, err := svc.CreateStory(context.Background(), validRequest())
	assert.ErrorIs(t, err, models.ErrQueueFull)
	repo.AssertExpectations(t)
}

func TestStoryService_CreateStory_SchedulerErrorIsAdmissionError(t *testing.T) {
	repo := mocks.NewMockStoryRepository(t)
	scheduler := mocks.NewMockStoryScheduler(t)
	svc := service.NewStoryService(repo, scheduler, zap.NewNop())

	repo.On("CreateStory", mock.Anything, mock.Anything).Return(nil).Once()
	scheduler.On("Schedule", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker unreachable")).Once()
	repo.On("UpdateStory", mock.Anything, mock.Anything, mock.Anything).Return(nil, models.ErrPersistence).Once()

	_, err := svc.CreateStory(context.Background(), validRequest())
	assert.ErrorIs(t, err, models.ErrQueueFull)
}

func TestStoryService_CreateStory_PersistenceError(t *testing.T) {
	repo := mocks.NewMockStoryRepository(t)
	scheduler := mocks.NewMockStoryScheduler(t)
	svc := service.NewStoryService(repo, scheduler, zap.NewNop())

	repo.On("CreateStory", mock.Anything, mock.Anything).Return(models.ErrPersistence).Once()

	_, err := svc.CreateStory(context.Background(), validRequest())
	assert.ErrorIs(t, err, models.ErrPersistence)
	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything)
}

func TestStoryService_GetAndDelete(t *testing.T) {
	repo := mocks.NewMockStoryRepository(t)
	svc := service.NewStoryService(repo, mocks.NewMockStoryScheduler(t), zap.NewNop())

	repo.On("GetStory", mock.Anything, "s1").Return(&models.Story{ID: "s1"}, nil).Once()
	story, err := svc.GetStory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", story.ID)

	repo.On("DeleteStory", mock.Anything, "s1").Return(true, nil).Once()
	repo.On("DeleteStory", mock.Anything, "missing").Return(false, nil).Once()
	assert.NoError(t, svc.DeleteStory(context.Background(), "s1"))
	assert.ErrorIs(t, svc.DeleteStory(context.Background(), "missing"), models.ErrNotFound)

	_, err = svc.GetStory(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	repo.AssertExpectations(t)
}
