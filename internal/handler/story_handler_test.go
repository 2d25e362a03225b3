package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fairytale-server/internal/handler"
	"fairytale-server/internal/mocks"
	"fairytale-server/internal/models"
	"fairytale-server/internal/service"
)

func newRouter(svc service.StoryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler.NewStoryHandler(svc, zap.NewNop()).RegisterRoutes(router)
	return router
}

func doRequest(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewReader([]byte(b))
		default:
			data, _ := json.Marshal(b)
			reader = bytes.NewReader(data)
		}
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func requestBody(age int) map[string]interface{} {
	return map[string]interface{}{
		"childName":         "Aya",
		"childAge":          age,
		"theme":             "character-courage",
		"language":          "en",
		"illustrationStyle": "watercolor",
		"pageCount":         3,
	}
}

func TestCreateStory_Accepted(t *testing.T) {
	repo := mocks.NewMockStoryRepository(t)
	scheduler := mocks.NewMockStoryScheduler(t)
	router := newRouter(service.NewStoryService(repo, scheduler, zap.NewNop()))

	repo.On("CreateStory", mock.Anything, mock.Anything).Return(nil).Once()
	scheduler.On("Schedule", mock.Anything, mock.Anything, mock.MatchedBy(func(r models.StoryRequest) bool {
		return r.PageCount == 3 && r.ChildAge == 5
	})).Return(nil).Once()

	rec := doRequest(router, http.MethodPost, "/api/v1/stories", requestBody(5))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["id"])
	assert.Equal(t, "generating_story", resp["status"])
	scheduler.AssertExpectations(t)
}

// Возраст вне диапазона отклоняется до создания записи и запуска генерации.
func TestCreateStory_InvalidAgeRejected(t *testing.T) {
	repo := mocks.NewMockStoryRepository(t)
	scheduler := mocks.NewMockStoryScheduler(t)
	router := newRouter(service.NewStoryService(repo, scheduler, zap.NewNop()))

	rec := doRequest(router, http.MethodPost, "/api/v1/stories", requestBody(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp handler.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "childAge")
	repo.AssertNotCalled(t, "CreateStory", mock.Anything, mock.Anything)
	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateStory_MalformedBody(t *testing.T) {
	svc := mocks.NewMockStoryService(t)
	router := newRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/stories", `{"childName": "Aya", "childAge": "five"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "CreateStory", mock.Anything, mock.Anything)
}

func TestCreateStory_Busy(t *testing.T) {
	svc := mocks.NewMockStoryService(t)
	svc.On("CreateStory", mock.Anything, mock.Anything).Return(nil, models.ErrQueueFull).Once()
	router := newRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/stories", requestBody(5))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestGetStory(t *testing.T) {
	svc := mocks.NewMockStoryService(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.On("GetStory", mock.Anything, "s1").Return(&models.Story{
		ID:        "s1",
		Status:    models.StatusGeneratingImages,
		Title:     "Aya and the Moon",
		Content:   &models.StoryContent{Title: "Aya and the Moon", Pages: []models.Page{{Text: "a"}, {Text: "b"}}, Moral: "m"},
		Images:    []string{"http://img/s1_p0.jpg"},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil).Once()
	svc.On("GetStory", mock.Anything, "missing").Return(nil, models.ErrNotFound).Once()
	router := newRouter(svc)

	rec := doRequest(router, http.MethodGet, "/api/v1/stories/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "generating_images", body["status"])
	assert.Len(t, body["images"], 1)
	assert.Contains(t, body, "storyContent")
	assert.NotContains(t, body, "completedAt")

	rec = doRequest(router, http.MethodGet, "/api/v1/stories/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteStory(t *testing.T) {
	svc := mocks.NewMockStoryService(t)
	svc.On("DeleteStory", mock.Anything, "s1").Return(nil).Once()
	svc.On("DeleteStory", mock.Anything, "missing").Return(models.ErrNotFound).Once()
	svc.On("DeleteStory", mock.Anything, "broken").Return(errors.New("disk on fire")).Once()
	router := newRouter(svc)

	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodDelete, "/api/v1/stories/s1", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, http.MethodDelete, "/api/v1/stories/missing", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, doRequest(router, http.MethodDelete, "/api/v1/stories/broken", nil).Code)
}
