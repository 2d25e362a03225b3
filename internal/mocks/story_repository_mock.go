package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

// MockStoryRepository is a mock type for the StoryRepository type
type MockStoryRepository struct {
	mock.Mock
}

// CreateStory provides a mock function with given fields: ctx, story
func (_m *MockStoryRepository) CreateStory(ctx context.Context, story *models.Story) error {
	ret := _m.Called(ctx, story)
	return ret.Error(0)
}

// UpdateStory provides a mock function with given fields: ctx, id, update
func (_m *MockStoryRepository) UpdateStory(ctx context.Context, id string, update models.StoryUpdate) (*models.Story, error) {
	ret := _m.Called(ctx, id, update)

	var r0 *models.Story
	if rf, ok := ret.Get(0).(func(context.Context, string, models.StoryUpdate) *models.Story); ok {
		r0 = rf(ctx, id, update)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}
	return r0, ret.Error(1)
}

// GetStory provides a mock function with given fields: ctx, id
func (_m *MockStoryRepository) GetStory(ctx context.Context, id string) (*models.Story, error) {
	ret := _m.Called(ctx, id)

	var r0 *models.Story
	if rf, ok := ret.Get(0).(func(context.Context, string) *models.Story); ok {
		r0 = rf(ctx, id)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}
	return r0, ret.Error(1)
}

// DeleteStory provides a mock function with given fields: ctx, id
func (_m *MockStoryRepository) DeleteStory(ctx context.Context, id string) (bool, error) {
	ret := _m.Called(ctx, id)
	return ret.Bool(0), ret.Error(1)
}

// ClaimStory provides a mock function with given fields: ctx, id, owner, ttl
func (_m *MockStoryRepository) ClaimStory(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	ret := _m.Called(ctx, id, owner, ttl)
	return ret.Bool(0), ret.Error(1)
}

// Close provides a mock function with no fields
func (_m *MockStoryRepository) Close() error {
	ret := _m.Called()
	return ret.Error(0)
}

// NewMockStoryRepository creates a new instance of MockStoryRepository.
func NewMockStoryRepository(t interface {
	mock.TestingT
	Helper()
}) *MockStoryRepository {
	m := &MockStoryRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ interfaces.StoryRepository = (*MockStoryRepository)(nil)
