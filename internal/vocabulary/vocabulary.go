// Package vocabulary stores the target vocabulary: the entities recognised in
// the analyst's intelligence statement, grouped by entity label.
package vocabulary

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/extractor"
)

// Record is one stored target entity with its mention count in the
// statement it came from.
type Record struct {
	Text     string `json:"text"`
	Label    string `json:"label"`
	Mentions int    `json:"mentions"`
}

// Store supplies the target vocabulary for a ranking run.
type Store interface {
	TargetVocabulary(ctx context.Context) ([]string, error)
}

// Writer replaces the stored target entities.
type Writer interface {
	SaveEntities(ctx context.Context, records []Record) error
}

// ReadWriter is a Store that can also be rewritten.
type ReadWriter interface {
	Store
	Writer
}

// ExtractTargets runs ext over an intelligence statement and counts the
// mentions of every (text, label) pair. Records come back in order of first
// mention.
func ExtractTargets(ctx context.Context, ext extractor.Extractor, statement string) ([]Record, error) {
	if strings.TrimSpace(statement) == "" {
		return nil, nil
	}
	entities, err := ext.Extract(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("extracting targets: %w", err)
	}
	type key struct{ text, label string }
	index := make(map[key]int)
	var records []Record
	for _, e := range entities {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		k := key{text, e.Label}
		if i, ok := index[k]; ok {
			records[i].Mentions++
			continue
		}
		index[k] = len(records)
		records = append(records, Record{Text: text, Label: e.Label, Mentions: 1})
	}
	return records, nil
}

// rankTexts collapses records to distinct texts ordered by total mentions
// descending, then text ascending.
func rankTexts(records []Record) []string {
	totals := make(map[string]int)
	for _, r := range records {
		if r.Text == "" {
			continue
		}
		totals[r.Text] += r.Mentions
	}
	texts := make([]string, 0, len(totals))
	for t := range totals {
		texts = append(texts, t)
	}
	sort.Slice(texts, func(i, j int) bool {
		if totals[texts[i]] != totals[texts[j]] {
			return totals[texts[i]] > totals[texts[j]]
		}
		return texts[i] < texts[j]
	})
	return texts
}

// StaticStore serves a fixed vocabulary.
type StaticStore struct {
	vocabulary []string
}

func NewStaticStore(vocabulary []string) *StaticStore {
	v := make([]string, 0, len(vocabulary))
	for _, entry := range vocabulary {
		if entry != "" {
			v = append(v, entry)
		}
	}
	return &StaticStore{vocabulary: v}
}

func (s *StaticStore) TargetVocabulary(_ context.Context) ([]string, error) {
	out := make([]string, len(s.vocabulary))
	copy(out, s.vocabulary)
	return out, nil
}
