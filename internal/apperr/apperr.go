// Package apperr defines the error kinds surfaced by the maintenance service.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error that knows its HTTP status.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors of the same code, so errors.Is(err, apperr.ErrNotFound) works
// for any not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

var (
	ErrNotFound     = &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: "resource not found"}
	ErrValidation   = &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: "validation failed"}
	ErrConflict     = &Error{Code: CodeConflict, Status: http.StatusConflict, Message: "conflict"}
	ErrInternal     = &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden    = &Error{Code: CodeForbidden, Status: http.StatusForbidden, Message: "forbidden"}
)

func newFrom(kind *Error, message string, err error) *Error {
	e := *kind
	if message != "" {
		e.Message = message
	}
	e.Err = err
	return &e
}

// NotFound reports a missing entity.
func NotFound(message string) *Error { return newFrom(ErrNotFound, message, nil) }

// Validation reports malformed or missing input.
func Validation(message string, err error) *Error { return newFrom(ErrValidation, message, err) }

// Conflict reports a request that clashes with current state.
func Conflict(message string) *Error { return newFrom(ErrConflict, message, nil) }

// Internal wraps a persistence or transport failure.
func Internal(message string, err error) *Error { return newFrom(ErrInternal, message, err) }

// Unauthorized reports a missing or invalid identity.
func Unauthorized(message string) *Error { return newFrom(ErrUnauthorized, message, nil) }

// Forbidden reports an identity lacking permission.
func Forbidden(message string) *Error { return newFrom(ErrForbidden, message, nil) }

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err.Error(), err)
}
