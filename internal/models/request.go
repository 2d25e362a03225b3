package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	MinChildAge      = 2
	MaxChildAge      = 12
	MinPageCount     = 1
	MaxPageCount     = 10
	DefaultPageCount = 10
)

// Language - язык истории.
type Language string

const (
	LanguageRU Language = "ru"
	LanguageEN Language = "en"
	LanguageKZ Language = "kz"
)

// SupportedLanguages содержит все поддерживаемые языки.
var SupportedLanguages = []Language{LanguageRU, LanguageEN, LanguageKZ}

// StoryRequest - параметры заказа истории. После приема не изменяется.
type StoryRequest struct {
	ChildName         string   `json:"childName" validate:"required,max=64"`
	ChildAge          int      `json:"childAge" validate:"min=2,max=12"`
	Theme             string   `json:"theme" validate:"required,max=128"`
	Language          Language `json:"language" validate:"required,oneof=ru en kz"`
	IllustrationStyle string   `json:"illustrationStyle" validate:"required,max=64"`
	PageCount         int      `json:"pageCount" validate:"min=1,max=10"`
	FreeTextSeed      string   `json:"freeTextSeed,omitempty" validate:"max=2000"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Normalize обрезает пробелы в строковых полях и подставляет значения по умолчанию.
func (r StoryRequest) Normalize() StoryRequest {
	r.ChildName = strings.TrimSpace(r.ChildName)
	r.Theme = strings.TrimSpace(r.Theme)
	r.IllustrationStyle = strings.TrimSpace(r.IllustrationStyle)
	r.FreeTextSeed = strings.TrimSpace(r.FreeTextSeed)
	r.Language = Language(strings.ToLower(strings.TrimSpace(string(r.Language))))
	if r.PageCount == 0 {
		r.PageCount = DefaultPageCount
	}
	return r
}

// Validate проверяет запрос. Все ошибки оборачивают ErrInvalidInput.
func (r StoryRequest) Validate() error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
