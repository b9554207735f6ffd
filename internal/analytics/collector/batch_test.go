package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/kafka"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (b *batchRecorder) PublishBatch(_ context.Context, events []kafka.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("broker down")
	}
	b.batches = append(b.batches, events)
	return nil
}

func (b *batchRecorder) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, batch := range b.batches {
		n += len(batch)
	}
	return n
}

func TestBatchCollectorFlushesOnShutdown(t *testing.T) {
	rec := &batchRecorder{}
	bc := NewBatchCollector(rec, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	bc.ObserveRun(context.Background(), &priority.Result{RunID: "r1"}, nil)
	bc.Track(analytics.RankEvent{RunID: "r2"})
	cancel()
	bc.Close()

	if rec.total() != 2 {
		t.Fatalf("published %d events, want 2", rec.total())
	}
}

func TestBatchCollectorFlushesFullBatch(t *testing.T) {
	rec := &batchRecorder{}
	bc := NewBatchCollector(rec, 2, time.Hour)
	bc.Track(analytics.RankEvent{RunID: "a"})
	bc.Track(analytics.RankEvent{RunID: "b"})

	deadline := time.Now().Add(2 * time.Second)
	for rec.total() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.total() != 2 {
		t.Fatalf("published %d events, want 2", rec.total())
	}
}

func TestBatchCollectorRequeuesOnFailure(t *testing.T) {
	rec := &batchRecorder{fail: true}
	bc := NewBatchCollector(rec, 10, time.Hour)
	bc.Track(analytics.RankEvent{RunID: "a"})
	bc.flush(context.Background())
	if bc.BufferLen() != 1 {
		t.Fatalf("buffer = %d, want 1 after failed flush", bc.BufferLen())
	}
}
