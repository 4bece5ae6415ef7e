package errors

import (
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
		{"app error wins", New(ErrLoadFailed, http.StatusTeapot, "custom"), http.StatusTeapot},
		{"invalid input", fmt.Errorf("parsing limit: %w", ErrInvalidInput), http.StatusBadRequest},
		{"load failed", fmt.Errorf("store: %w", ErrLoadFailed), http.StatusServiceUnavailable},
		{"index not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "offset %d is negative", -1)
	if err.Error() != "invalid input: offset -1 is negative" {
		t.Errorf("Error() = %q", err.Error())
	}
	wrapped := fmt.Errorf("handler: %w", err)
	if HTTPStatusCode(wrapped) != http.StatusBadRequest {
		t.Errorf("wrapped app error lost its status code")
	}
}
