// Package apperr defines the error kinds shared across the conversation pipeline.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput covers wrong sample rates, empty text/audio and malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTranscription signals that the speech-recognition backend is unreachable or failing.
	ErrTranscription = errors.New("transcription service error")
	// ErrExternalService signals a generation or extraction backend failure after retries.
	ErrExternalService = errors.New("external service error")
	// ErrParse signals malformed structured output from a model.
	ErrParse = errors.New("parse error")
	// ErrAlreadyExists signals a duplicate profile.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound signals an unknown user or thread where existence is required.
	ErrNotFound = errors.New("not found")
)

// InvalidInput wraps ErrInvalidInput with a detail message.
func InvalidInput(format string, args ...any) error {
	return wrap(ErrInvalidInput, format, args...)
}

// Transcription wraps ErrTranscription with a detail message.
func Transcription(format string, args ...any) error {
	return wrap(ErrTranscription, format, args...)
}

// ExternalService wraps ErrExternalService with a detail message.
func ExternalService(format string, args ...any) error {
	return wrap(ErrExternalService, format, args...)
}

// Parse wraps ErrParse with a detail message.
func Parse(format string, args ...any) error {
	return wrap(ErrParse, format, args...)
}

// AlreadyExists wraps ErrAlreadyExists with a detail message.
func AlreadyExists(format string, args ...any) error {
	return wrap(ErrAlreadyExists, format, args...)
}

// NotFound wraps ErrNotFound with a detail message.
func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error kind onto the status code surfaced by the HTTP layer.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrTranscription), errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
