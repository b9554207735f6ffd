package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
)

type memPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *memPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestEventFromRun(t *testing.T) {
	res := &priority.Result{
		RunID:             "run-1",
		Phase:             priority.PhaseDone,
		Complete:          true,
		PopularVocabulary: []string{"nato"},
		Stats:             priority.Stats{Candidates: 5, Survivors: 2, Returned: 2, DurationMS: 40},
	}
	ctx := logger.WithRequestID(context.Background(), "req-9")

	tests := []struct {
		name    string
		res     *priority.Result
		err     error
		outcome string
	}{
		{"done", res, nil, OutcomeDone},
		{"empty", &priority.Result{RunID: "run-2"}, nil, OutcomeEmpty},
		{"cancelled", res, apperrors.ErrCancelled, OutcomeCancelled},
		{"error", nil, apperrors.ErrVocabularyUnavailable, OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := EventFromRun(ctx, tt.res, tt.err)
			if ev.Outcome != tt.outcome {
				t.Fatalf("outcome = %s, want %s", ev.Outcome, tt.outcome)
			}
			if ev.RequestID != "req-9" || ev.Type != EventRankRun {
				t.Fatalf("event = %+v", ev)
			}
		})
	}
	ev := EventFromRun(ctx, res, nil)
	if ev.RunID != "run-1" || ev.Candidates != 5 || ev.LatencyMs != 40 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestCollectorPublishesTrackedEvents(t *testing.T) {
	pub := &memPublisher{}
	c := NewCollector(pub, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.ObserveRun(context.Background(), &priority.Result{RunID: "a"}, nil)
	c.Track(RankEvent{Type: EventRankRun, RunID: "b"})
	c.Close()

	if pub.count() != 2 {
		t.Fatalf("published %d events, want 2", pub.count())
	}
	if pub.events[0].Key != "a" {
		t.Fatalf("key = %q, want run id", pub.events[0].Key)
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&memPublisher{}, 1)
	c.Track(RankEvent{RunID: "a"})
	c.Track(RankEvent{RunID: "b"})
	if len(c.eventCh) != 1 {
		t.Fatalf("buffered %d events, want 1", len(c.eventCh))
	}
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(RankEvent{Outcome: OutcomeDone, Candidates: 10, Survivors: 4, Returned: 4, LatencyMs: 100,
		PopularVocabulary: []string{"nato", "kyiv"}, TargetSkipped: map[string]int{"timeout": 2}})
	agg.Record(RankEvent{Outcome: OutcomeEmpty, Candidates: 10, LatencyMs: 50,
		PopularSkipped: map[string]int{"timeout": 1}})
	agg.Record(RankEvent{Outcome: OutcomeCancelled, Candidates: 0, LatencyMs: 300,
		PopularVocabulary: []string{"nato"}})
	agg.Record(RankEvent{Outcome: OutcomeError})

	s := agg.Stats()
	if s.TotalRuns != 4 || s.CompletedRuns != 2 || s.EmptyRuns != 1 || s.CancelledRuns != 1 || s.FailedRuns != 1 {
		t.Fatalf("counts = %+v", s)
	}
	if s.SurvivalRate != 0.2 {
		t.Fatalf("survival rate = %v, want 0.2", s.SurvivalRate)
	}
	if s.SkippedByReason["timeout"] != 3 {
		t.Fatalf("skipped = %v", s.SkippedByReason)
	}
	if len(s.TopPopular) != 2 || s.TopPopular[0] != (EntityCount{"nato", 2}) {
		t.Fatalf("top popular = %v", s.TopPopular)
	}
	if s.P99LatencyMs != 300 {
		t.Fatalf("p99 = %d", s.P99LatencyMs)
	}
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator(nil)
	h := HandleEvent(agg)

	value, _ := json.Marshal(RankEvent{Type: EventRankRun, Outcome: OutcomeDone})
	if err := h(context.Background(), nil, value); err != nil {
		t.Fatalf("handler: %v", err)
	}
	other, _ := json.Marshal(RankEvent{Type: "something_else"})
	if err := h(context.Background(), nil, other); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if err := h(context.Background(), nil, []byte("{not json")); !errors.Is(err, kafka.ErrPoison) {
		t.Fatalf("err = %v, want ErrPoison", err)
	}
	if got := agg.Stats().TotalRuns; got != 1 {
		t.Fatalf("total runs = %d, want 1", got)
	}
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(RankEvent{Outcome: OutcomeDone, LatencyMs: 10})
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalRuns != 1 {
		t.Fatalf("total runs = %d", got.TotalRuns)
	}

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analytics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", rec.Code)
	}
}
