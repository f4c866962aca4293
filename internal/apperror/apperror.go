// Package apperror defines the error taxonomy shared by the store, the
// services and the chat handlers.
//
// Every domain failure wraps one of the sentinel errors below, so callers can
// branch with errors.Is() and the chat layer can decide between a localized
// reply, a toast, or a log line without parsing strings.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	// ErrProtocol marks a callback payload this bot could not have produced.
	ErrProtocol = errors.New("protocol error")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // English description, used in logs
	Field   string // Optional: field causing the error
	// Key is the i18n catalog key shown to the chat user; empty means the
	// handler picks a generic message for the sentinel.
	Key  string
	Vars map[string]string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Localized attaches the catalog key (and its template variables) the chat
// layer should render for this error.
func (e *AppError) Localized(key string, vars map[string]string) *AppError {
	e.Key = key
	e.Vars = vars
	return e
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the acting user lacks permission.
// The chat layer answers these with a toast.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Protocol reports a malformed callback payload.
func Protocol(payload, reason string) *AppError {
	return &AppError{
		Err:     ErrProtocol,
		Message: fmt.Sprintf("malformed callback %q: %s", payload, reason),
	}
}

// KeyOf returns the catalog key attached to err, if any.
func KeyOf(err error) (string, map[string]string, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Key != "" {
		return appErr.Key, appErr.Vars, true
	}
	return "", nil, false
}
