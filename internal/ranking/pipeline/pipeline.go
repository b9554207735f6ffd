// Package pipeline wires the ranking components from configuration. The
// HTTP service, the Kafka worker and the CLI all build their pipeline here.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/popular"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/sentiment"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/resilience"
)

// redisPrefix namespaces every key the ranker writes.
const redisPrefix = "osr:"

// Pipeline holds the constructed components. DB, Redis and Annotator are
// nil when not configured.
type Pipeline struct {
	Manager   *priority.Manager
	Store     vocabulary.ReadWriter
	Extractor extractor.Extractor
	Annotator *sentiment.Annotator
	Providers []discovery.Provider
	DB        *postgres.Client
	Redis     *pkgredis.Client

	cfg     *config.Config
	closers []func() error
	logger  *slog.Logger
}

// Options adjusts what Build connects to.
type Options struct {
	// NeedDB opens Postgres even when the vocabulary lives in files, for
	// API keys or analytics snapshots.
	NeedDB bool
	// TargetOverride replaces the configured vocabulary store with a fixed
	// list.
	TargetOverride []string
}

// Build constructs the pipeline. m may be nil.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, opts Options) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, logger: slog.Default().With("component", "pipeline")}

	if cfg.Vocabulary.Backend == "postgres" || opts.NeedDB {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		p.closers = append(p.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			p.Close()
			return nil, err
		}
		p.DB = db
	}

	switch cfg.Vocabulary.Backend {
	case "postgres":
		p.Store = vocabulary.NewPostgresStore(p.DB)
	default:
		p.Store = vocabulary.NewFileStore(cfg.Vocabulary.Dir)
	}
	var store vocabulary.Store = p.Store
	if len(opts.TargetOverride) > 0 {
		store = vocabulary.NewStaticStore(opts.TargetOverride)
	}

	var pages fetch.Fetcher = fetch.NewHTTPFetcher(cfg.Fetch, nil)
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis, redisPrefix)
		if err != nil {
			p.logger.Warn("redis unavailable, page cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			p.Redis = rc
			p.closers = append(p.closers, rc.Close)
			pages = fetch.NewCachedFetcher(pages, fetch.NewRedisTextCache(rc, cfg.Redis.CacheTTL), m)
			p.logger.Info("page cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	client := &http.Client{}
	ext, err := extractor.New(cfg.Extractor, client, newBreaker("extractor", m))
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Extractor = ext

	if cfg.Sentiment.Endpoint != "" {
		classifier := sentiment.NewHTTPClassifier(cfg.Sentiment, client, newBreaker("sentiment", m))
		p.Annotator = sentiment.NewAnnotator(classifier, cfg.Sentiment.Threshold, cfg.Scoring.Workers)
	}

	if cfg.Discovery.FeedURLTemplate != "" {
		p.Providers = []discovery.Provider{
			discovery.NewFeedProvider("news", cfg.Discovery, cfg.Fetch.UserAgent, client),
		}
	}

	finder := popular.NewFinder(pages, ext, popular.ConfigFrom(cfg.Popular, cfg.Scoring.Workers), m)
	p.Manager = priority.NewManager(pages, store, finder, priority.ConfigFrom(cfg.Scoring), m)

	p.logger.Info("ranking pipeline ready",
		"vocabulary_backend", cfg.Vocabulary.Backend,
		"target_override", len(opts.TargetOverride),
		"extractor", cfg.Extractor.Kind,
		"sentiment", p.Annotator != nil,
		"page_cache", p.Redis != nil,
	)
	return p, nil
}

func newBreaker(name string, m *metrics.Metrics) *resilience.CircuitBreaker {
	cfg := resilience.CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
	if m != nil {
		gauge := m.CircuitBreakerState.WithLabelValues(name)
		gauge.Set(float64(resilience.StateClosed))
		cfg.OnStateChange = func(_ string, _, to resilience.State) {
			gauge.Set(float64(to))
		}
	}
	return resilience.NewCircuitBreaker(name, cfg)
}

// RegisterHealth adds a check for every external dependency in use.
func (p *Pipeline) RegisterHealth(c *health.Checker) {
	if p.DB != nil {
		c.Register("postgres", health.PingCheck(p.DB.Ping, true))
	}
	if p.Redis != nil {
		c.Register("redis", health.PingCheck(p.Redis.Ping, false))
	}
	if hc, ok := p.Extractor.(interface{ Healthy(context.Context) error }); ok {
		c.Register("extractor", health.PingCheck(hc.Healthy, false))
	}
}

// Close releases connections in reverse order of opening.
func (p *Pipeline) Close() {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	if err := errors.Join(errs...); err != nil {
		p.logger.Error("closing pipeline", "error", err)
	}
}
