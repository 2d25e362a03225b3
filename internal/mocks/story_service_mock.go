package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fairytale-server/internal/models"
	"fairytale-server/internal/service"
)

// MockStoryService is a mock type for the StoryService type
type MockStoryService struct {
	mock.Mock
}

// CreateStory provides a mock function with given fields: ctx, req
func (_m *MockStoryService) CreateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error) {
	ret := _m.Called(ctx, req)

	var r0 *models.Story
	if rf, ok := ret.Get(0).(func(context.Context, models.StoryRequest) *models.Story); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}
	return r0, ret.Error(1)
}

// GetStory provides a mock function with given fields: ctx, id
func (_m *MockStoryService) GetStory(ctx context.Context, id string) (*models.Story, error) {
	ret := _m.Called(ctx, id)

	var r0 *models.Story
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}
	return r0, ret.Error(1)
}

// DeleteStory provides a mock function with given fields: ctx, id
func (_m *MockStoryService) DeleteStory(ctx context.Context, id string) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

// NewMockStoryService creates a new instance of MockStoryService.
func NewMockStoryService(t interface {
	mock.TestingT
	Helper()
}) *MockStoryService {
	m := &MockStoryService{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.StoryService = (*MockStoryService)(nil)
