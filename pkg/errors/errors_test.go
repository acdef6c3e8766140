package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not ready", ErrNotReady, http.StatusServiceUnavailable},
		{"wrapped not ready", fmt.Errorf("store: %w", ErrNotReady), http.StatusServiceUnavailable},
		{"missing filter", ErrMissingFilter, http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"row out of range", ErrRowOutOfRange, http.StatusNotFound},
		{"closed", ErrClosed, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestAppErrorStatusWins(t *testing.T) {
	err := New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad code")
	if got := HTTPStatusCode(err); got != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatusCode = %d, want 422", got)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrMissingFilter, http.StatusBadRequest, "need %s", "something")
	if !errors.Is(err, ErrMissingFilter) {
		t.Error("AppError does not unwrap to its sentinel")
	}
	if err.Error() != "missing filter: need something" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestAppErrorThroughWrapping(t *testing.T) {
	inner := New(ErrRowOutOfRange, http.StatusNotFound, "row 9")
	outer := fmt.Errorf("hydrating: %w", inner)
	if got := HTTPStatusCode(outer); got != http.StatusNotFound {
		t.Errorf("HTTPStatusCode = %d, want 404", got)
	}
}
