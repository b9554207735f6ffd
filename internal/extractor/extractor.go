// Package extractor finds named entities in page text. The ranking pipeline
// only needs entity surface strings; labels are kept for the target
// vocabulary files.
package extractor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/resilience"
)

// Entity is one recognised mention.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Extractor returns the entity mentions found in text, in order of
// appearance. Repeated mentions are returned repeatedly.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

// New builds the extractor selected by cfg.Kind. breaker is only used by
// the http kind and may be nil otherwise.
func New(cfg config.ExtractorConfig, client *http.Client, breaker *resilience.CircuitBreaker) (Extractor, error) {
	switch cfg.Kind {
	case "", "heuristic":
		return NewHeuristicExtractor(), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("extractor kind http requires an endpoint")
		}
		return NewHTTPExtractor(cfg, client, breaker), nil
	default:
		return nil, fmt.Errorf("unknown extractor kind %q", cfg.Kind)
	}
}

// Texts returns the surface strings of entities.
func Texts(entities []Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Text
	}
	return out
}
