package models

// StoryStatus - статус генерации истории.
type StoryStatus string

const (
	StatusGeneratingStory  StoryStatus = "generating_story"
	StatusGeneratingImages StoryStatus = "generating_images"
	StatusComplete         StoryStatus = "complete"
	StatusFailed           StoryStatus = "failed"
)

// rank задает порядок статусов. failed и complete находятся на одном уровне.
func (s StoryStatus) rank() int {
	switch s {
	case StatusGeneratingStory:
		return 1
	case StatusGeneratingImages:
		return 2
	case StatusComplete, StatusFailed:
		return 3
	default:
		return 0
	}
}

// IsValid проверяет, что статус известен.
func (s StoryStatus) IsValid() bool {
	return s.rank() > 0
}

// IsTerminal возвращает true для complete и failed.
func (s StoryStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransitionTo проверяет, что переход не откатывает статус назад.
// Повторная запись того же нетерминального статуса допустима.
func (s StoryStatus) CanTransitionTo(next StoryStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == "" {
		return true
	}
	if s.IsTerminal() {
		return s == next
	}
	if next == StatusFailed {
		return true
	}
	return next.rank() >= s.rank()
}
