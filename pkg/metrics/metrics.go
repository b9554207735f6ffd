// Package metrics defines the Prometheus metric collectors used by the
// ranking pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the ranker.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	RankRunsTotal         *prometheus.CounterVec
	RankDuration          prometheus.Histogram
	SourcesScoredTotal    *prometheus.CounterVec
	SourcesSkippedTotal   *prometheus.CounterVec
	SourcesFilteredTotal  prometheus.Counter
	PopularVocabularySize prometheus.Histogram
	PageCacheHitsTotal    prometheus.Counter
	PageCacheMissesTotal  prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RankRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_runs_total",
				Help: "Ranking runs by outcome (done, empty, cancelled, error).",
			},
			[]string{"outcome"},
		),
		RankDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rank_duration_seconds",
				Help:    "Wall-clock duration of a full ranking run.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
		),
		SourcesScoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sources_scored_total",
				Help: "Sources scored per pass (target, popular).",
			},
			[]string{"pass"},
		),
		SourcesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sources_skipped_total",
				Help: "Sources whose text could not be used, by stage and reason.",
			},
			[]string{"stage", "reason"},
		),
		SourcesFilteredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sources_filtered_total",
				Help: "Sources dropped for scoring zero in the target pass.",
			},
		),
		PopularVocabularySize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "popular_vocabulary_size",
				Help:    "Number of entries in the derived popular vocabulary.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 30},
			},
		),
		PageCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "page_cache_hits_total",
				Help: "Page text cache hits.",
			},
		),
		PageCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "page_cache_misses_total",
				Help: "Page text cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RankRunsTotal,
		m.RankDuration,
		m.SourcesScoredTotal,
		m.SourcesSkippedTotal,
		m.SourcesFilteredTotal,
		m.PopularVocabularySize,
		m.PageCacheHitsTotal,
		m.PageCacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
