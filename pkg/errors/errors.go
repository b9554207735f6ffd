package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrVocabularyUnavailable = errors.New("target vocabulary unavailable")
	ErrFetchFailed           = errors.New("page fetch failed")
	ErrDisallowedContent     = errors.New("disallowed content type")
	ErrContentTooLarge       = errors.New("content too large")
	ErrExtractionFailed      = errors.New("entity extraction failed")
	ErrClassificationFailed  = errors.New("sentiment classification failed")
	ErrCancelled             = errors.New("run cancelled")
	ErrInternal              = errors.New("internal error")
	ErrTimeout               = errors.New("operation timed out")
)

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

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsTransient reports whether err is a per-source failure that a scoring
// pass absorbs instead of failing the run.
func IsTransient(err error) bool {
	return errors.Is(err, ErrFetchFailed) ||
		errors.Is(err, ErrDisallowedContent) ||
		errors.Is(err, ErrContentTooLarge) ||
		errors.Is(err, ErrExtractionFailed) ||
		errors.Is(err, ErrTimeout)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrVocabularyUnavailable):
		return http.StatusFailedDependency
	case errors.Is(err, ErrCancelled):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
