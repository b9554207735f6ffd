// Package sentiment annotates ranked sources with the sentiment of their
// headlines and flags confidently non-neutral ones as likely biased.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/source"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

const LabelNeutral = "neutral"

// Classifier labels a piece of text (positive, negative, neutral) with a
// confidence in [0,1].
type Classifier interface {
	Classify(ctx context.Context, text string) (label string, confidence float64, err error)
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// HTTPClassifier calls an external sentiment model service.
type HTTPClassifier struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	breaker  *resilience.CircuitBreaker
}

func NewHTTPClassifier(cfg config.SentimentConfig, client *http.Client, breaker *resilience.CircuitBreaker) *HTTPClassifier {
	if client == nil {
		client = &http.Client{}
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("sentiment", resilience.CircuitBreakerConfig{})
	}
	return &HTTPClassifier{endpoint: cfg.Endpoint, timeout: cfg.Timeout, client: client, breaker: breaker}
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (string, float64, error) {
	resp, err := resilience.WithTimeout(ctx, c.timeout, "classify", func(ctx context.Context) (classifyResponse, error) {
		var out classifyResponse
		err := c.breaker.Execute(func() error {
			var err error
			out, err = c.call(ctx, text)
			return err
		})
		return out, err
	})
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", apperrors.ErrClassificationFailed, err)
	}
	return strings.ToLower(resp.Label), resp.Score, nil
}

func (c *HTTPClassifier) call(ctx context.Context, text string) (classifyResponse, error) {
	var out classifyResponse
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("calling %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("classifier returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}

// Annotator attaches sentiment to sources without touching score or order.
type Annotator struct {
	classifier Classifier
	threshold  float64
	workers    int
}

func NewAnnotator(c Classifier, threshold float64, workers int) *Annotator {
	if workers <= 0 {
		workers = 1
	}
	return &Annotator{classifier: c, threshold: threshold, workers: workers}
}

// Assess classifies text and decides whether it reads as biased.
func (a *Annotator) Assess(ctx context.Context, text string) (*source.Sentiment, error) {
	label, confidence, err := a.classifier.Classify(ctx, strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}
	return &source.Sentiment{
		Label:      label,
		Confidence: confidence,
		Biased:     label != LabelNeutral && confidence > a.threshold,
	}, nil
}

// Annotate returns a copy of sources with Sentiment set from each title, or
// the description when the title is empty. Sources that cannot be
// classified are returned without an annotation.
func (a *Annotator) Annotate(ctx context.Context, sources []source.Source) []source.Source {
	out := source.Clone(sources)
	log := logger.FromContext(ctx).With("component", "sentiment")
	var mu sync.Mutex
	failed := 0

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i := range out {
		headline := out[i].Title
		if strings.TrimSpace(headline) == "" {
			headline = out[i].Description
		}
		if strings.TrimSpace(headline) == "" {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			s, err := a.Assess(ctx, headline)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				log.Debug("headline not classified", "url", out[i].URL, "error", err)
				return nil
			}
			out[i].Sentiment = s
			return nil
		})
	}
	_ = g.Wait()
	if failed > 0 {
		log.Warn("some headlines could not be classified", "failed", failed, "sources", len(out))
	}
	return out
}
