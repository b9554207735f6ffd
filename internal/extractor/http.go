package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/resilience"
)

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Entities []Entity `json:"entities"`
}

// HTTPExtractor calls an external NER service. Calls go through a circuit
// breaker and are bounded by the configured timeout.
type HTTPExtractor struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	breaker  *resilience.CircuitBreaker
	logger   *slog.Logger
}

func NewHTTPExtractor(cfg config.ExtractorConfig, client *http.Client, breaker *resilience.CircuitBreaker) *HTTPExtractor {
	if client == nil {
		client = &http.Client{}
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("extractor", resilience.CircuitBreakerConfig{})
	}
	return &HTTPExtractor{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		client:   client,
		breaker:  breaker,
		logger:   slog.Default().With("component", "entity-extractor"),
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	entities, err := resilience.WithTimeout(ctx, e.timeout, "extract", func(ctx context.Context) ([]Entity, error) {
		var out []Entity
		err := e.breaker.Execute(func() error {
			var err error
			out, err = e.call(ctx, text)
			return err
		})
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrExtractionFailed, err)
	}
	return entities, nil
}

func (e *HTTPExtractor) call(ctx context.Context, text string) ([]Entity, error) {
	body, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", e.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extractor returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return out.Entities, nil
}

// Healthy reports an error while the breaker is open.
func (e *HTTPExtractor) Healthy(_ context.Context) error {
	if e.breaker.GetState() == resilience.StateOpen {
		return resilience.ErrCircuitOpen
	}
	return nil
}
