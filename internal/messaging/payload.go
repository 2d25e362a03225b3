package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fairytale-server/internal/models"
)

// StoryTaskPayload - задача на генерацию истории в очереди story_generation_tasks.
type StoryTaskPayload struct {
	StoryID    string              `json:"storyId"`
	Request    models.StoryRequest `json:"request"`
	EnqueuedAt time.Time           `json:"enqueuedAt"`
}

// Validate проверяет обязательные поля задачи.
func (p StoryTaskPayload) Validate() error {
	if strings.TrimSpace(p.StoryID) == "" {
		return errors.New("storyId is required")
	}
	if strings.TrimSpace(p.Request.ChildName) == "" && p.Request.ChildAge == 0 {
		return fmt.Errorf("request is empty for story %s", p.StoryID)
	}
	return nil
}
