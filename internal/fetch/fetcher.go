// Package fetch downloads candidate pages and reduces them to plain text for
// entity matching. Failures are typed with the sentinel errors in pkg/errors
// so scoring passes can degrade a source to empty text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/resilience"
	"golang.org/x/time/rate"
)

// Fetcher returns the normalized text of the page at url.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (string, error)

func (f FetcherFunc) FetchText(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// HTTPFetcher fetches pages over HTTP with a per-request timeout, a shared
// rate limit and a bounded retry for transient failures.
type HTTPFetcher struct {
	client  *http.Client
	cfg     config.FetchConfig
	limiter *rate.Limiter
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewHTTPFetcher builds a fetcher from cfg. A nil client uses a fresh
// http.Client; the per-request timeout always comes from cfg.
func NewHTTPFetcher(cfg config.FetchConfig, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedContentTypes))
	for _, ct := range cfg.AllowedContentTypes {
		allowed[strings.ToLower(ct)] = struct{}{}
	}
	return &HTTPFetcher{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		allowed: allowed,
		logger:  slog.Default().With("component", "page-fetcher"),
	}
}

// attemptError marks whether a failed attempt is worth retrying.
type attemptError struct {
	err       error
	temporary bool
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

func isTemporary(err error) bool {
	var ae *attemptError
	return errors.As(err, &ae) && ae.temporary
}

// FetchText downloads url and returns its normalized text.
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: waiting for rate limiter: %v", apperrors.ErrFetchFailed, err)
	}
	var text string
	err := resilience.Retry(ctx, "fetch "+url, resilience.RetryConfig{
		MaxAttempts:  max(f.cfg.RetryAttempts, 1),
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Retryable:    isTemporary,
	}, func(ctx context.Context) error {
		var err error
		text, err = f.fetchOnce(ctx, url)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: building request for %s: %v", apperrors.ErrFetchFailed, url, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &attemptError{err: fmt.Errorf("%w: GET %s: %v", apperrors.ErrTimeout, url, err), temporary: true}
		}
		return "", &attemptError{err: fmt.Errorf("%w: GET %s: %v", apperrors.ErrFetchFailed, url, err), temporary: ctx.Err() == nil}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		temporary := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return "", &attemptError{
			err:       fmt.Errorf("%w: GET %s: status %s", apperrors.ErrFetchFailed, url, resp.Status),
			temporary: temporary,
		}
	}

	mediaType, err := f.checkContentType(resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}

	body := io.Reader(resp.Body)
	if f.cfg.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", &attemptError{err: fmt.Errorf("%w: reading %s: %v", apperrors.ErrFetchFailed, url, err), temporary: true}
	}
	if f.cfg.MaxBodyBytes > 0 && int64(len(raw)) > f.cfg.MaxBodyBytes {
		return "", apperrors.Newf(apperrors.ErrContentTooLarge, 0, "%s: body exceeds %d bytes", url, f.cfg.MaxBodyBytes)
	}

	if mediaType == "text/plain" {
		return NormalizeText(string(raw)), nil
	}
	text, err := Normalize(strings.NewReader(string(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperrors.ErrFetchFailed, url, err)
	}
	f.logger.Debug("page fetched", "url", url, "bytes", len(raw), "text_len", len(text))
	return text, nil
}

// checkContentType returns the media type when it is allowed. A missing
// header is treated as HTML.
func (f *HTTPFetcher) checkContentType(header string) (string, error) {
	if header == "" {
		return "text/html", nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("%w: unparsable content type %q", apperrors.ErrDisallowedContent, header)
	}
	mediaType = strings.ToLower(mediaType)
	if len(f.allowed) == 0 {
		return mediaType, nil
	}
	if _, ok := f.allowed[mediaType]; !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrDisallowedContent, mediaType)
	}
	return mediaType, nil
}
