package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalRuns       int64            `json:"total_runs"`
	CompletedRuns   int64            `json:"completed_runs"`
	EmptyRuns       int64            `json:"empty_runs"`
	CancelledRuns   int64            `json:"cancelled_runs"`
	FailedRuns      int64            `json:"failed_runs"`
	CandidatesSeen  int64            `json:"candidates_seen"`
	SourcesReturned int64            `json:"sources_returned"`
	SurvivalRate    float64          `json:"survival_rate"`
	AvgLatencyMs    float64          `json:"avg_latency_ms"`
	P50LatencyMs    int64            `json:"p50_latency_ms"`
	P95LatencyMs    int64            `json:"p95_latency_ms"`
	P99LatencyMs    int64            `json:"p99_latency_ms"`
	TopPopular      []EntityCount    `json:"top_popular_entities"`
	SkippedByReason map[string]int64 `json:"skipped_by_reason"`
	RunsPerMinute   float64          `json:"runs_per_minute"`
}

type EntityCount struct {
	Entity string `json:"entity"`
	Count  int64  `json:"count"`
}

// Aggregator folds rank events into running totals.
type Aggregator struct {
	mu            sync.RWMutex
	totalRuns     atomic.Int64
	completed     atomic.Int64
	empty         atomic.Int64
	cancelled     atomic.Int64
	failed        atomic.Int64
	candidates    atomic.Int64
	survivors     atomic.Int64
	returned      atomic.Int64
	latencies     []int64
	popularCounts map[string]int64
	skipped       map[string]int64
	startTime     time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator builds an Aggregator. consumer may be nil when events are
// fed through Record directly.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:     make([]int64, 0, 1024),
		popularCounts: make(map[string]int64),
		skipped:       make(map[string]int64),
		startTime:     time.Now(),
		consumer:      consumer,
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// SetConsumer attaches the consumer that feeds the aggregator. It must be
// called before Start.
func (a *Aggregator) SetConsumer(consumer *kafka.Consumer) {
	a.consumer = consumer
}

func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		return errors.New("analytics aggregator has no consumer")
	}
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent decodes rank events from Kafka. Undecodable messages are
// reported as poison so the consumer commits past them.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[RankEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return err
		}
		if event.Type != EventRankRun {
			agg.logger.Debug("ignoring analytics event", "type", event.Type)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record folds one event into the totals.
func (a *Aggregator) Record(event RankEvent) {
	a.totalRuns.Add(1)
	switch event.Outcome {
	case OutcomeDone:
		a.completed.Add(1)
	case OutcomeEmpty:
		a.completed.Add(1)
		a.empty.Add(1)
	case OutcomeCancelled:
		a.cancelled.Add(1)
	default:
		a.failed.Add(1)
	}
	a.candidates.Add(int64(event.Candidates))
	a.survivors.Add(int64(event.Survivors))
	a.returned.Add(int64(event.Returned))

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) >= maxLatencySamples {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	for _, e := range event.PopularVocabulary {
		a.popularCounts[e]++
	}
	for reason, n := range event.TargetSkipped {
		a.skipped[reason] += int64(n)
	}
	for reason, n := range event.PopularSkipped {
		a.skipped[reason] += int64(n)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalRuns:       a.totalRuns.Load(),
		CompletedRuns:   a.completed.Load(),
		EmptyRuns:       a.empty.Load(),
		CancelledRuns:   a.cancelled.Load(),
		FailedRuns:      a.failed.Load(),
		CandidatesSeen:  a.candidates.Load(),
		SourcesReturned: a.returned.Load(),
		SkippedByReason: make(map[string]int64, len(a.skipped)),
	}
	if stats.CandidatesSeen > 0 {
		stats.SurvivalRate = float64(a.survivors.Load()) / float64(stats.CandidatesSeen)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopPopular = topN(a.popularCounts, 10)
	for reason, n := range a.skipped {
		stats.SkippedByReason[reason] = n
	}
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.RunsPerMinute = float64(stats.TotalRuns) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []EntityCount {
	result := make([]EntityCount, 0, len(counts))
	for entity, count := range counts {
		result = append(result, EntityCount{Entity: entity, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Entity < result[j].Entity
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
