package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fairytale-server/internal/models"
	"fairytale-server/internal/service"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// createStoryResponse - ответ на POST /api/v1/stories.
type createStoryResponse struct {
	ID     string             `json:"id"`
	Status models.StoryStatus `json:"status"`
}

// StoryHandler обрабатывает HTTP запросы приема заявок и чтения прогресса.
type StoryHandler struct {
	service service.StoryService
	logger  *zap.Logger
}

// NewStoryHandler создает StoryHandler.
func NewStoryHandler(s service.StoryService, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{service: s, logger: logger.Named("StoryHandler")}
}

// RegisterRoutes регистрирует маршруты API историй.
// intake выполняется перед приемом заявки, например ограничение частоты.
func (h *StoryHandler) RegisterRoutes(router gin.IRouter, intake ...gin.HandlerFunc) {
	stories := router.Group("/api/v1/stories")
	{
		stories.POST("", append(intake, h.createStory)...)
		stories.GET("/:id", h.getStory)
		stories.DELETE("/:id", h.deleteStory)
	}
}

func (h *StoryHandler) createStory(c *gin.Context) {
	var req models.StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid story request body", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "invalid request body"})
		return
	}

	story, err := h.service.CreateStory(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, createStoryResponse{ID: story.ID, Status: story.Status})
}

func (h *StoryHandler) getStory(c *gin.Context) {
	story, err := h.service.GetStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoryHandler) deleteStory(c *gin.Context) {
	if err := h.service.DeleteStory(c.Request.Context(), c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleServiceError переводит ошибки сервиса в HTTP ответы.
func (h *StoryHandler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var resp APIError

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		resp = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		resp = APIError{Message: "story not found"}
	case errors.Is(err, models.ErrQueueFull):
		statusCode = http.StatusServiceUnavailable
		resp = APIError{Message: "server is busy, try again later"}
		c.Header("Retry-After", "30")
	default:
		h.logger.Error("Unhandled internal error", zap.Error(err))
		_ = c.Error(err)
		statusCode = http.StatusInternalServerError
		resp = APIError{Message: "an unexpected internal error occurred"}
	}
	c.AbortWithStatusJSON(statusCode, resp)
}
