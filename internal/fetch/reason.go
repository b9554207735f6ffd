package fetch

import (
	"context"
	"errors"

	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
)

// Skip reasons reported when a source's text cannot be used.
const (
	ReasonFetchFailed      = "fetch_failed"
	ReasonDisallowed       = "disallowed_content"
	ReasonTooLarge         = "too_large"
	ReasonTimeout          = "timeout"
	ReasonExtractionFailed = "extraction_failed"
	ReasonCancelled        = "cancelled"
)

// Reason maps a fetch or extraction error to a skip reason label.
func Reason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, apperrors.ErrDisallowedContent):
		return ReasonDisallowed
	case errors.Is(err, apperrors.ErrContentTooLarge):
		return ReasonTooLarge
	case errors.Is(err, apperrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, apperrors.ErrExtractionFailed):
		return ReasonExtractionFailed
	default:
		return ReasonFetchFailed
	}
}
