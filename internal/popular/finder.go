// Package popular derives the popular vocabulary: the entities mentioned by
// the largest number of candidate sources.
package popular

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/source"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Config tunes popular vocabulary derivation. The vocabulary keeps
// min(Cap, ceil(TopFraction*D)) entities; pages longer than MaxTextLength
// runes are skipped.
type Config struct {
	TopFraction   float64
	Cap           int
	MaxTextLength int
	StopWords     []string
	Workers       int
}

// ConfigFrom builds a finder Config from the loaded configuration.
func ConfigFrom(p config.PopularConfig, workers int) Config {
	return Config{
		TopFraction:   p.TopFraction,
		Cap:           p.Cap,
		MaxTextLength: p.MaxTextLength,
		StopWords:     p.StopWords,
		Workers:       workers,
	}
}

// Stats summarises one Find call.
type Stats struct {
	Sources  int            `json:"sources"`
	Used     int            `json:"used"`
	Skipped  map[string]int `json:"skipped,omitempty"`
	Distinct int            `json:"distinct"`
	Selected int            `json:"selected"`
	Ranked   []EntityCount  `json:"-"`
}

// Finder derives the popular vocabulary of a set of candidate sources.
type Finder struct {
	fetcher   fetch.Fetcher
	extractor extractor.Extractor
	cfg       Config
	stop      map[string]struct{}
	metrics   *metrics.Metrics
}

// NewFinder builds a Finder. m may be nil.
func NewFinder(f fetch.Fetcher, ext extractor.Extractor, cfg Config, m *metrics.Metrics) *Finder {
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Finder{fetcher: f, extractor: ext, cfg: cfg, stop: stop, metrics: m}
}

// Find fetches every source, extracts its entities and returns the most
// widely mentioned ones. Sources whose text cannot be used are skipped and
// counted in Stats. If ctx is cancelled, sources not yet started are
// skipped and the vocabulary reflects only completed sources.
func (f *Finder) Find(ctx context.Context, sources []source.Source) ([]string, Stats) {
	log := logger.FromContext(ctx).With("component", "popular-finder")
	stats := Stats{Sources: len(sources), Skipped: make(map[string]int)}
	table := NewFrequencyTable()
	var mu sync.Mutex

	skip := func(url, reason string, err error) {
		mu.Lock()
		stats.Skipped[reason]++
		mu.Unlock()
		if f.metrics != nil {
			f.metrics.SourcesSkippedTotal.WithLabelValues("popular", reason).Inc()
		}
		log.Debug("source skipped", "url", url, "reason", reason, "error", err)
	}

	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)
	for _, src := range sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				skip(src.URL, fetch.ReasonCancelled, ctx.Err())
				return nil
			}
			text, err := f.fetcher.FetchText(ctx, src.URL)
			if err != nil {
				skip(src.URL, fetch.Reason(err), err)
				return nil
			}
			if f.cfg.MaxTextLength > 0 && utf8.RuneCountInString(text) > f.cfg.MaxTextLength {
				skip(src.URL, fetch.ReasonTooLarge, nil)
				return nil
			}
			entities, err := f.extractor.Extract(ctx, text)
			if err != nil {
				skip(src.URL, fetch.Reason(err), err)
				return nil
			}
			table.AddSet(f.candidates(entities))
			mu.Lock()
			stats.Used++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stats.Distinct = table.Len()
	stats.Ranked = table.Ranked()
	popular := top(stats.Ranked, f.cfg.TopFraction, f.cfg.Cap)
	n := len(popular)
	stats.Selected = n

	if f.metrics != nil {
		f.metrics.PopularVocabularySize.Observe(float64(n))
	}
	log.Info("popular vocabulary derived",
		"sources", stats.Sources,
		"used", stats.Used,
		"distinct", stats.Distinct,
		"selected", n,
	)
	return popular, stats
}

// candidates trims entity texts and drops stop words (compared lower-cased)
// and empty strings. Case-insensitive duplicates are left to the table.
func (f *Finder) candidates(entities []extractor.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		if _, ok := f.stop[strings.ToLower(text)]; ok {
			continue
		}
		out = append(out, text)
	}
	return out
}

// WithFetcher returns a copy of f that reads pages through fe.
func (f *Finder) WithFetcher(fe fetch.Fetcher) *Finder {
	c := *f
	c.fetcher = fe
	return &c
}
