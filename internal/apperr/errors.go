// Package apperr defines the error taxonomy shared by services and handlers.
// Domain errors wrap one of these sentinels so callers can classify them with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUpstream          = errors.New("upstream failure")
	ErrPersistence       = errors.New("persistence failure")
)

// Error pairs a taxonomy kind with a caller-facing message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is lets errors.Is match both the kind and the wrapped cause.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Invalid is shorthand for an ErrInvalidRequest error.
func Invalid(format string, args ...any) *Error {
	return New(ErrInvalidRequest, format, args...)
}

// Persistence wraps a document-store failure.
func Persistence(err error, op string) *Error {
	return Wrap(ErrPersistence, err, "%s", op)
}
