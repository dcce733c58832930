// Package apperror defines the domain errors shared by every layer.
//
// Lower layers return these (possibly wrapped with fmt.Errorf and %w) and the
// HTTP layer maps them to status codes with errors.Is, so repositories and
// services never need to know about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
)

type AppError struct {
	Err     error  // sentinel used for classification
	Message string // human-readable, safe to show to the user
	Field   string // optional: form field the error refers to
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing record, e.g. NotFound("song", 42).
func NotFound(resource string, id int64) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %d", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden reports a request that was understood but refused, such as a
// state-changing action carrying a bad security token.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}
