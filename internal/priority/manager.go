// Package priority runs the two-pass relevance scoring of candidate sources:
// a target pass against the analyst's vocabulary, a filter, a popular pass
// against the vocabulary shared by the survivors, and a final sort.
package priority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/counter"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/popular"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/source"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/tracing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Pass names used in logs, metrics and stats.
const (
	PassTarget  = "target"
	PassPopular = "popular"
)

// Config holds the per-pass multipliers and the fetch worker count. Each
// pass adds multiplier * matches to a source's score.
type Config struct {
	TargetMultiplier  int
	PopularMultiplier int
	Workers           int
}

// ConfigFrom builds a manager Config from the loaded scoring section.
func ConfigFrom(s config.ScoringConfig) Config {
	return Config{
		TargetMultiplier:  s.TargetMultiplier,
		PopularMultiplier: s.PopularMultiplier,
		Workers:           s.Workers,
	}
}

// Stats describes one run.
type Stats struct {
	Candidates           int            `json:"candidates"`
	TargetVocabularySize int            `json:"target_vocabulary_size"`
	TargetSkipped        map[string]int `json:"target_skipped,omitempty"`
	Filtered             int            `json:"filtered"`
	Survivors            int            `json:"survivors"`
	PopularDistinct      int            `json:"popular_distinct"`
	PopularFinderSkipped map[string]int `json:"popular_finder_skipped,omitempty"`
	PopularSkipped       map[string]int `json:"popular_skipped,omitempty"`
	Returned             int            `json:"returned"`
	DurationMS           int64          `json:"duration_ms"`

	// PopularCounts holds the selected popular entities with the number of
	// survivors mentioning each.
	PopularCounts []popular.EntityCount `json:"popular_counts,omitempty"`
}

// Result is the outcome of Rank. When Complete is false, Sources is the
// snapshot taken at the end of Phase, sorted by score.
type Result struct {
	RunID             string           `json:"run_id"`
	Phase             Phase            `json:"phase"`
	Complete          bool             `json:"complete"`
	Sources           []source.Source  `json:"sources"`
	PopularVocabulary []string         `json:"popular_vocabulary"`
	Stats             Stats            `json:"stats"`
	PhaseDurations    map[string]int64 `json:"phase_durations_ms,omitempty"`
}

// RunObserver is notified once per Rank call. res is nil when the run failed
// before producing any snapshot.
type RunObserver interface {
	ObserveRun(ctx context.Context, res *Result, err error)
}

// Manager owns the popular finder and runs ranking passes.
type Manager struct {
	fetcher  fetch.Fetcher
	store    vocabulary.Store
	finder   *popular.Finder
	cfg      Config
	metrics  *metrics.Metrics
	observer RunObserver
	logger   *slog.Logger
}

// NewManager builds a Manager. m may be nil.
func NewManager(f fetch.Fetcher, store vocabulary.Store, finder *popular.Finder, cfg Config, m *metrics.Metrics) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Manager{
		fetcher: f,
		store:   store,
		finder:  finder,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "priority-manager"),
	}
}

// SetObserver registers o to be told about every run.
func (m *Manager) SetObserver(o RunObserver) {
	m.observer = o
}

// WithStore returns a Manager that reads its target vocabulary from store
// and shares everything else with m.
func (m *Manager) WithStore(store vocabulary.Store) *Manager {
	c := *m
	c.store = store
	return &c
}

// run carries the state of one Rank call.
type run struct {
	machine
	id       string
	start    time.Time
	snapshot []source.Source
	popular  []string
	stats    Stats
	root     *tracing.Span
}

func (r *run) result(complete bool) *Result {
	snap := source.Clone(r.snapshot)
	source.SortByScore(snap)
	if snap == nil {
		snap = []source.Source{}
	}
	vocab := r.popular
	if vocab == nil {
		vocab = []string{}
	}
	r.stats.Returned = len(snap)
	r.stats.DurationMS = time.Since(r.start).Milliseconds()
	return &Result{
		RunID:             r.id,
		Phase:             r.phase,
		Complete:          complete,
		Sources:           snap,
		PopularVocabulary: vocab,
		Stats:             r.stats,
		PhaseDurations:    r.root.PhaseDurations(),
	}
}

// Rank scores, filters and sorts sources. The input slice is not modified.
//
// Per-source fetch and extraction failures contribute zero and never fail
// the run. An unavailable vocabulary store is fatal. If ctx is cancelled,
// Rank returns the snapshot of the last completed phase together with an
// error wrapping ErrCancelled.
func (m *Manager) Rank(ctx context.Context, sources []source.Source) (res *Result, err error) {
	if err := source.Validate(sources); err != nil {
		return nil, err
	}

	r := &run{
		machine:  machine{phase: PhaseInit},
		id:       uuid.NewString(),
		start:    time.Now(),
		snapshot: source.Clone(sources),
		stats:    Stats{Candidates: len(sources)},
	}
	ctx = logger.WithRunID(ctx, r.id)
	ctx, r.root = tracing.StartSpan(ctx, "rank", r.id)
	log := logger.FromContext(ctx).With("component", "priority-manager")

	defer func() {
		r.root.End()
		r.root.Log(log)
		m.recordOutcome(r, res, err)
		if m.observer != nil {
			m.observer.ObserveRun(ctx, res, err)
		}
	}()

	log.Info("ranking run started", "candidates", len(sources))

	var vocab []string
	if len(sources) > 0 {
		vocab, err = m.targetVocabulary(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return m.cancelled(ctx, r)
			}
			return nil, err
		}
	}
	r.stats.TargetVocabularySize = len(vocab)

	// Pages are read at most once per run; both passes and the finder see
	// the same text for a URL.
	pages := fetch.NewCachedFetcher(m.fetcher, fetch.NewMemoryTextCache(), nil)

	spanCtx, span := tracing.StartChildSpan(ctx, "target_pass")
	scored, skipped, err := m.scorePass(spanCtx, pages, r.snapshot, vocab, m.cfg.TargetMultiplier, PassTarget)
	span.End()
	if err != nil {
		return m.cancelled(ctx, r)
	}
	r.snapshot = scored
	r.stats.TargetSkipped = skipped
	if err := r.advance(PhaseTargetScored); err != nil {
		return nil, err
	}

	_, span = tracing.StartChildSpan(ctx, "filter")
	survivors := filterZero(r.snapshot)
	span.SetAttr("dropped", len(r.snapshot)-len(survivors))
	span.End()
	r.stats.Filtered = len(r.snapshot) - len(survivors)
	r.stats.Survivors = len(survivors)
	r.snapshot = survivors
	if err := r.advance(PhaseFiltered); err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.SourcesFilteredTotal.Add(float64(r.stats.Filtered))
	}
	log.Info("target pass complete",
		"vocabulary", len(vocab),
		"survivors", len(survivors),
		"filtered", r.stats.Filtered,
		"skipped", sum(skipped),
	)

	var popularVocab []string
	var pstats popular.Stats
	if len(survivors) > 0 {
		spanCtx, span = tracing.StartChildSpan(ctx, "popular_vocabulary")
		popularVocab, pstats = m.finder.WithFetcher(pages).Find(spanCtx, survivors)
		span.SetAttr("selected", len(popularVocab))
		span.End()
		if ctx.Err() != nil {
			return m.cancelled(ctx, r)
		}
	}

	spanCtx, span = tracing.StartChildSpan(ctx, "popular_pass")
	scored, skipped, err = m.scorePass(spanCtx, pages, survivors, popularVocab, m.cfg.PopularMultiplier, PassPopular)
	span.End()
	if err != nil {
		return m.cancelled(ctx, r)
	}
	r.snapshot = scored
	r.popular = popularVocab
	r.stats.PopularSkipped = skipped
	r.stats.PopularDistinct = pstats.Distinct
	r.stats.PopularFinderSkipped = pstats.Skipped
	if len(popularVocab) > 0 {
		r.stats.PopularCounts = pstats.Ranked[:len(popularVocab)]
	}
	if err := r.advance(PhasePopularScored); err != nil {
		return nil, err
	}

	_, span = tracing.StartChildSpan(ctx, "sort")
	source.SortByScore(r.snapshot)
	span.End()
	if err := r.advance(PhaseSorted); err != nil {
		return nil, err
	}
	if err := r.advance(PhaseDone); err != nil {
		return nil, err
	}

	res = r.result(true)
	log.Info("ranking run complete",
		"returned", res.Stats.Returned,
		"popular_vocabulary", len(popularVocab),
		"duration_ms", res.Stats.DurationMS,
	)
	return res, nil
}

func (m *Manager) targetVocabulary(ctx context.Context) ([]string, error) {
	vocab, err := m.store.TargetVocabulary(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrVocabularyUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrVocabularyUnavailable, err)
	}
	return vocab, nil
}

func (m *Manager) cancelled(ctx context.Context, r *run) (*Result, error) {
	res := r.result(false)
	logger.FromContext(ctx).Warn("ranking run cancelled",
		"component", "priority-manager",
		"phase", r.phase,
		"returned", res.Stats.Returned,
	)
	return res, fmt.Errorf("%w after phase %s: %w", apperrors.ErrCancelled, r.phase, context.Cause(ctx))
}

// scorePass adds multiplier * Count(vocab, text) to a copy of every source.
// A source whose page cannot be fetched contributes zero. The pass is
// all-or-nothing: if ctx ends before every source is scored, the copy is
// discarded and ctx's error is returned.
func (m *Manager) scorePass(ctx context.Context, f fetch.Fetcher, sources []source.Source, vocab []string, multiplier int, pass string) ([]source.Source, map[string]int, error) {
	out := source.Clone(sources)
	skipped := make(map[string]int)
	if len(out) == 0 || len(vocab) == 0 {
		return out, skipped, ctx.Err()
	}
	log := logger.FromContext(ctx).With("component", "priority-manager", "pass", pass)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.cfg.Workers)
	for i := range out {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			text, err := f.FetchText(ctx, out[i].URL)
			if err != nil {
				reason := fetch.Reason(err)
				mu.Lock()
				skipped[reason]++
				mu.Unlock()
				if m.metrics != nil {
					m.metrics.SourcesSkippedTotal.WithLabelValues(pass, reason).Inc()
				}
				log.Debug("page unavailable, scoring as empty", "url", out[i].URL, "reason", reason, "error", err)
				text = ""
			}
			out[i].Score += multiplier * counter.Count(vocab, text)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if m.metrics != nil {
		m.metrics.SourcesScoredTotal.WithLabelValues(pass).Add(float64(len(out)))
	}
	return out, skipped, nil
}

func filterZero(sources []source.Source) []source.Source {
	out := make([]source.Source, 0, len(sources))
	for _, s := range sources {
		if s.Score != 0 {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) recordOutcome(r *run, res *Result, err error) {
	if m.metrics == nil {
		return
	}
	outcome := "done"
	switch {
	case errors.Is(err, apperrors.ErrCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	case res != nil && len(res.Sources) == 0:
		outcome = "empty"
	}
	m.metrics.RankRunsTotal.WithLabelValues(outcome).Inc()
	m.metrics.RankDuration.Observe(time.Since(r.start).Seconds())
}

func sum(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
