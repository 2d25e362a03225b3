package models

import "errors"

// Общие ошибки домена. Оборачиваются через fmt.Errorf("%w: ...") и проверяются через errors.Is.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")

	// Ошибки внешних генераторов.
	ErrUpstreamTimeout = errors.New("upstream call timed out")
	ErrUpstreamError   = errors.New("upstream call failed")
	ErrInvalidResponse = errors.New("upstream returned invalid response")

	// Ошибки хранилища состояния.
	ErrPersistence             = errors.New("state store operation failed")
	ErrInvalidStatusTransition = errors.New("invalid story status transition")
	ErrReferenceAlreadySet     = errors.New("character reference already set")

	// Ошибки планирования.
	ErrQueueFull     = errors.New("generation queue is full")
	ErrAlreadyQueued = errors.New("story is already being generated")
)
