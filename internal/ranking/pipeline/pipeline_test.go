package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func fileConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Vocabulary.Backend = "file"
	cfg.Vocabulary.Dir = t.TempDir()
	cfg.Redis.Enabled = false
	return cfg
}

func TestBuildFileBackend(t *testing.T) {
	cfg := fileConfig(t)
	p, err := Build(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer p.Close()

	if p.Manager == nil || p.Extractor == nil {
		t.Fatal("manager and extractor must be set")
	}
	if _, ok := p.Store.(*vocabulary.FileStore); !ok {
		t.Fatalf("store = %T, want *vocabulary.FileStore", p.Store)
	}
	if p.DB != nil || p.Redis != nil || p.Annotator != nil {
		t.Fatal("optional dependencies should be nil")
	}
	if len(p.Providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(p.Providers))
	}

	checker := health.NewChecker()
	p.RegisterHealth(checker)
	if r := checker.Run(context.Background()); len(r.Components) != 0 {
		t.Fatalf("unexpected health checks: %v", r.Components)
	}
}

func TestBuildWithSentimentAndOverride(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Sentiment.Endpoint = "http://127.0.0.1:1/classify"
	cfg.Discovery.FeedURLTemplate = ""
	p, err := Build(context.Background(), cfg, nil, Options{TargetOverride: []string{"Kyiv"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer p.Close()
	if p.Annotator == nil {
		t.Fatal("annotator should be built when an endpoint is configured")
	}
	if len(p.Providers) != 0 {
		t.Fatal("discovery should be off without a feed template")
	}
	res, err := p.Manager.Rank(context.Background(), nil)
	if err != nil || len(res.Sources) != 0 {
		t.Fatalf("empty rank = %+v, %v", res, err)
	}
}

func TestBuildRejectsUnknownExtractor(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Extractor.Kind = "http"
	cfg.Extractor.Endpoint = ""
	if _, err := Build(context.Background(), cfg, nil, Options{}); err == nil {
		t.Fatal("expected error for http extractor without endpoint")
	}
}

func TestBreakerStateGauge(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	cb := newBreaker("extractor", m)
	gauge := m.CircuitBreakerState.WithLabelValues("extractor")
	if got := testutil.ToFloat64(gauge); got != float64(resilience.StateClosed) {
		t.Fatalf("initial gauge = %v", got)
	}
	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errors.New("model down") })
	}
	if got := testutil.ToFloat64(gauge); got != float64(resilience.StateOpen) {
		t.Fatalf("gauge after failures = %v, want open", got)
	}
	cb.Reset()
	if got := testutil.ToFloat64(gauge); got != float64(resilience.StateClosed) {
		t.Fatalf("gauge after reset = %v, want closed", got)
	}
}
