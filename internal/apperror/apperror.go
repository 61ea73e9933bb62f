// Package apperror defines the error taxonomy shared by the store, the
// services and the HTTP adapter.
//
// Callers match categories with errors.Is against the sentinels below and
// read the human-readable message (and offending field, if any) through
// errors.As on *AppError.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AppError struct {
	Err     error  // sentinel category
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
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

// Forbidden returns an AppError indicating the caller lacks permission,
// e.g. deleting a post owned by someone else.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is returned by operations that need a session identity
// when nobody is logged in.
func Unauthenticated(action string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: fmt.Sprintf("must be logged in to %s", action),
	}
}
