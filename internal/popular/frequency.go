package popular

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// FrequencyTable counts, per entity, the number of sources mentioning it.
// Entities are compared case-insensitively; each entry remembers the surface
// form most sources used so the popular vocabulary can be matched against
// page text as written. It is safe for concurrent use; each AddSet call is
// applied atomically.
type FrequencyTable struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	count    int
	surfaces map[string]int
}

// surface returns the form used by the most sources, ties broken by the
// smaller string.
func (e *entry) surface() string {
	best, bestN := "", 0
	for s, n := range e.surfaces {
		if n > bestN || (n == bestN && s < best) {
			best, bestN = s, n
		}
	}
	return best
}

func NewFrequencyTable() *FrequencyTable {
	return &FrequencyTable{entries: make(map[string]*entry)}
}

// AddSet records one source's entities. Every entity whose lower-cased form
// appears in entities is incremented exactly once, however many spellings
// the source used; the first spelling is the one the source votes for.
func (t *FrequencyTable) AddSet(entities []string) {
	seen := make(map[string]struct{}, len(entities))
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, text := range entities {
		key := strings.ToLower(text)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		e, ok := t.entries[key]
		if !ok {
			e = &entry{surfaces: make(map[string]int, 1)}
			t.entries[key] = e
		}
		e.count++
		e.surfaces[text]++
	}
}

// count returns the number of sources that mentioned entity in any case.
func (t *FrequencyTable) count(entity string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[strings.ToLower(entity)]; ok {
		return e.count
	}
	return 0
}

// Len returns the number of distinct entities.
func (t *FrequencyTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// EntityCount is one row of a ranked frequency table. Entity is the
// preferred surface form.
type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// Ranked returns all entries by count descending, lower-cased entity
// ascending.
func (t *FrequencyTable) Ranked() []EntityCount {
	type row struct {
		key string
		EntityCount
	}
	t.mu.Lock()
	rows := make([]row, 0, len(t.entries))
	for key, e := range t.entries {
		rows = append(rows, row{key: key, EntityCount: EntityCount{Entity: e.surface(), Count: e.count}})
	}
	t.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].key < rows[j].key
	})
	out := make([]EntityCount, len(rows))
	for i, r := range rows {
		out[i] = r.EntityCount
	}
	return out
}

// Top returns the leading min(limit, ceil(fraction*D)) entities, where D is
// the number of distinct entities.
func (t *FrequencyTable) Top(fraction float64, limit int) []string {
	return top(t.Ranked(), fraction, limit)
}

func top(ranked []EntityCount, fraction float64, limit int) []string {
	n := Cutoff(len(ranked), fraction, limit)
	out := make([]string, n)
	for i := range out {
		out[i] = ranked[i].Entity
	}
	return out
}

// Cutoff computes min(limit, ceil(fraction*distinct)).
func Cutoff(distinct int, fraction float64, limit int) int {
	if distinct == 0 || fraction <= 0 {
		return 0
	}
	// 1e-9 absorbs products such as 0.1*30 = 3.0000000000000004.
	n := int(math.Ceil(fraction*float64(distinct) - 1e-9))
	n = min(n, limit, distinct)
	return max(n, 0)
}
