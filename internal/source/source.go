// Package source defines the candidate corroborating document that flows
// through the ranking pipeline.
package source

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
)

// Source is one web document discovered by the search aggregator. Score is
// the only field the ranking pipeline writes.
type Source struct {
	URL             string     `json:"url"`
	Title           string     `json:"title,omitempty"`
	Description     string     `json:"description,omitempty"`
	PageType        string     `json:"page_type,omitempty"`
	TimePublished   *time.Time `json:"time_published,omitempty"`
	ImageLinks      []string   `json:"image_links,omitempty"`
	VideoLinks      []string   `json:"video_links,omitempty"`
	EmbeddedContent []string   `json:"embedded_content,omitempty"`
	Score           int        `json:"score"`
	Sentiment       *Sentiment `json:"sentiment,omitempty"`
}

// Sentiment is the annotation attached to a ranked source's headline.
type Sentiment struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Biased     bool    `json:"biased"`
}

// Validate checks the fields the pipeline depends on.
func Validate(sources []Source) error {
	seen := make(map[string]int, len(sources))
	for i, s := range sources {
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("%w: source %d: url is required", apperrors.ErrInvalidInput, i)
		}
		if j, dup := seen[s.URL]; dup {
			return fmt.Errorf("%w: source %d: duplicate url %q (also at %d)", apperrors.ErrInvalidInput, i, s.URL, j)
		}
		seen[s.URL] = i
		if s.Score < 0 {
			return fmt.Errorf("%w: source %d: negative score %d", apperrors.ErrInvalidInput, i, s.Score)
		}
	}
	return nil
}

// Clone returns a deep copy of sources so callers' slices are never mutated.
func Clone(sources []Source) []Source {
	out := make([]Source, len(sources))
	for i, s := range sources {
		c := s
		c.ImageLinks = append([]string(nil), s.ImageLinks...)
		c.VideoLinks = append([]string(nil), s.VideoLinks...)
		c.EmbeddedContent = append([]string(nil), s.EmbeddedContent...)
		if s.TimePublished != nil {
			t := *s.TimePublished
			c.TimePublished = &t
		}
		if s.Sentiment != nil {
			sent := *s.Sentiment
			c.Sentiment = &sent
		}
		out[i] = c
	}
	return out
}

// SortByScore orders sources by score descending. Equal scores keep their
// relative input order.
func SortByScore(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})
}

// DedupeByURL keeps the first occurrence of every url.
func DedupeByURL(sources []Source) []Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}
