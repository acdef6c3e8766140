// Package errors defines the error taxonomy shared by the query path, the
// row store, and the HTTP layer. Sentinel errors classify a failure; AppError
// carries a caller-facing message and status on top of a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotReady means the row store has not been opened yet (the file was
	// missing at first use). Retryable: surfaced as 503, never a crash.
	ErrNotReady = errors.New("row store not loaded")
	// ErrRowOutOfRange means a row id points past the mapped extent. A
	// data-consistency bug, never silently clamped.
	ErrRowOutOfRange = errors.New("row id out of range")
	// ErrMissingFilter means a search carried no usable candidate filter.
	ErrMissingFilter = errors.New("missing filter")
	// ErrInvalidInput covers malformed client input (bad dates, bad codes).
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed means an operation was attempted on a closed store.
	ErrClosed = errors.New("store closed")
	// ErrInternal covers unexpected read-path failures (I/O, parse).
	ErrInternal = errors.New("internal error")
)

// AppError wraps a sentinel with a message and an HTTP status code.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError over a sentinel.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf creates an AppError with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status the transport should
// return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrMissingFilter), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRowOutOfRange):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
