package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

// MockTextGenerator is a mock type for the TextGenerator type
type MockTextGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, req
func (_m *MockTextGenerator) Generate(ctx context.Context, req models.StoryRequest) (*models.StoryContent, error) {
	ret := _m.Called(ctx, req)

	var r0 *models.StoryContent
	if rf, ok := ret.Get(0).(func(context.Context, models.StoryRequest) *models.StoryContent); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.StoryContent)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, models.StoryRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockTextGenerator creates a new instance of MockTextGenerator.
func NewMockTextGenerator(t interface {
	mock.TestingT
	Helper()
}) *MockTextGenerator {
	m := &MockTextGenerator{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

// MockImageGenerator is a mock type for the ImageGenerator type
type MockImageGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, prompt, reference
func (_m *MockImageGenerator) Generate(ctx context.Context, prompt interfaces.ImagePrompt, reference *models.CharacterReference) (*models.GeneratedImage, error) {
	ret := _m.Called(ctx, prompt, reference)

	var r0 *models.GeneratedImage
	if rf, ok := ret.Get(0).(func(context.Context, interfaces.ImagePrompt, *models.CharacterReference) *models.GeneratedImage); ok {
		r0 = rf(ctx, prompt, reference)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.GeneratedImage)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, interfaces.ImagePrompt, *models.CharacterReference) error); ok {
		r1 = rf(ctx, prompt, reference)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockImageGenerator creates a new instance of MockImageGenerator.
func NewMockImageGenerator(t interface {
	mock.TestingT
	Helper()
}) *MockImageGenerator {
	m := &MockImageGenerator{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

// MockStatusNotifier is a mock type for the StatusNotifier type
type MockStatusNotifier struct {
	mock.Mock
}

// NotifyStatus provides a mock function with given fields: ctx, event
func (_m *MockStatusNotifier) NotifyStatus(ctx context.Context, event models.StoryStatusEvent) error {
	ret := _m.Called(ctx, event)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, models.StoryStatusEvent) error); ok {
		r0 = rf(ctx, event)
	} else {
		r0 = ret.Error(0)
	}
	return r0
}

// NewMockStatusNotifier creates a new instance of MockStatusNotifier.
func NewMockStatusNotifier(t interface {
	mock.TestingT
	Helper()
}) *MockStatusNotifier {
	m := &MockStatusNotifier{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

// MockStoryScheduler is a mock type for the StoryScheduler type
type MockStoryScheduler struct {
	mock.Mock
}

// Schedule provides a mock function with given fields: ctx, storyID, req
func (_m *MockStoryScheduler) Schedule(ctx context.Context, storyID string, req models.StoryRequest) error {
	ret := _m.Called(ctx, storyID, req)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, models.StoryRequest) error); ok {
		r0 = rf(ctx, storyID, req)
	} else {
		r0 = ret.Error(0)
	}
	return r0
}

// NewMockStoryScheduler creates a new instance of MockStoryScheduler.
func NewMockStoryScheduler(t interface {
	mock.TestingT
	Helper()
}) *MockStoryScheduler {
	m := &MockStoryScheduler{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var (
	_ interfaces.TextGenerator  = (*MockTextGenerator)(nil)
	_ interfaces.ImageGenerator = (*MockImageGenerator)(nil)
	_ interfaces.StatusNotifier = (*MockStatusNotifier)(nil)
	_ interfaces.StoryScheduler = (*MockStoryScheduler)(nil)
)
