package models

import (
	"fmt"
	"strings"
	"time"
)

// Page - одна страница истории.
type Page struct {
	Text        string `json:"text"`
	ImagePrompt string `json:"imagePrompt"`
}

// StoryContent - структурированный текст истории.
type StoryContent struct {
	Title string `json:"title"`
	Pages []Page `json:"pages"`
	Moral string `json:"moral"`
}

// Validate проверяет форму контента: непустые заголовок, мораль и текст каждой страницы.
func (c *StoryContent) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: content is empty", ErrInvalidResponse)
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidResponse)
	}
	if strings.TrimSpace(c.Moral) == "" {
		return fmt.Errorf("%w: moral is empty", ErrInvalidResponse)
	}
	if len(c.Pages) == 0 {
		return fmt.Errorf("%w: no pages", ErrInvalidResponse)
	}
	for i, p := range c.Pages {
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("%w: page %d has empty text", ErrInvalidResponse, i)
		}
	}
	return nil
}

// CharacterReference - артефакт, полученный из первой иллюстрации и
// используемый для сохранения облика персонажа на остальных страницах.
// Data хранится только в памяти на время генерации.
type CharacterReference struct {
	ImageURL    string `json:"imageUrl"`
	Seed        int64  `json:"seed,omitempty"`
	Description string `json:"description,omitempty"`
	Data        []byte `json:"-"`
}

// GeneratedImage - результат генерации одной иллюстрации.
type GeneratedImage struct {
	URL      string
	Artifact *CharacterReference
}

// Story - запись о генерации истории в хранилище состояния.
type Story struct {
	ID                 string              `json:"id"`
	Request            StoryRequest        `json:"request"`
	Status             StoryStatus         `json:"status"`
	Title              string              `json:"title,omitempty"`
	Content            *StoryContent       `json:"storyContent,omitempty"`
	Images             []string            `json:"images,omitempty"`
	CharacterReference *CharacterReference `json:"characterReference,omitempty"`
	Error              string              `json:"error,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
	CompletedAt        *time.Time          `json:"completedAt,omitempty"`
}

// StoryUpdate - частичное обновление записи. nil-поля не изменяются.
// Images заменяет весь массив целиком, если не nil.
type StoryUpdate struct {
	Status             *StoryStatus
	Title              *string
	Content            *StoryContent
	Images             []string
	CharacterReference *CharacterReference
	Error              *string
	CompletedAt        *time.Time
}

// ApplyUpdate сливает обновление с записью, соблюдая инварианты:
// статус не откатывается, characterReference не перезаписывается,
// массив изображений не сокращается.
func (s *Story) ApplyUpdate(u StoryUpdate, now time.Time) error {
	if u.Status != nil {
		if !s.Status.CanTransitionTo(*u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, s.Status, *u.Status)
		}
	}
	if u.CharacterReference != nil && s.CharacterReference != nil {
		return ErrReferenceAlreadySet
	}
	if u.Images != nil && len(u.Images) < len(s.Images) {
		return fmt.Errorf("%w: images shrink from %d to %d", ErrInvalidInput, len(s.Images), len(u.Images))
	}

	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Content != nil {
		c := *u.Content
		s.Content = &c
	}
	if u.Images != nil {
		s.Images = append([]string(nil), u.Images...)
	}
	if u.CharacterReference != nil {
		ref := *u.CharacterReference
		ref.Data = nil
		s.CharacterReference = &ref
	}
	if u.Error != nil {
		s.Error = *u.Error
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		s.CompletedAt = &t
	}
	s.UpdatedAt = now
	return nil
}

// StatusPtr возвращает указатель на статус, удобно для StoryUpdate.
func StatusPtr(s StoryStatus) *StoryStatus { return &s }

// StringPtr возвращает указатель на строку.
func StringPtr(s string) *string { return &s }

// StoryStatusEvent - событие о завершении генерации истории.
type StoryStatusEvent struct {
	StoryID          string      `json:"storyId"`
	Status           StoryStatus `json:"status"`
	Title            string      `json:"title,omitempty"`
	ImageCount       int         `json:"imageCount"`
	PlaceholderCount int         `json:"placeholderCount"`
	Error            string      `json:"error,omitempty"`
	OccurredAt       time.Time   `json:"occurredAt"`
}
