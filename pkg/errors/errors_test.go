package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("decode: %w", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("store: %w", ErrVocabularyUnavailable), http.StatusFailedDependency},
		{ErrCancelled, http.StatusRequestTimeout},
		{New(ErrInternal, http.StatusTeapot, "custom"), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(fmt.Errorf("GET x: %w", ErrFetchFailed)) {
		t.Error("wrapped fetch failure should be transient")
	}
	if !IsTransient(Newf(ErrContentTooLarge, 0, "%d chars", 200000)) {
		t.Error("content too large should be transient")
	}
	if IsTransient(ErrVocabularyUnavailable) {
		t.Error("vocabulary unavailable is a configuration error, not transient")
	}
}
