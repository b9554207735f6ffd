// Package collector provides a batching rank-event publisher for
// high-throughput callers such as the Kafka rank worker.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/kafka"
)

// BatchCollector buffers rank events and flushes them when batchSize is
// reached or every flushInterval.
type BatchCollector struct {
	publisher     kafka.BatchPublisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewBatchCollector(publisher kafka.BatchPublisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It returns immediately.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bc.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started", "batch_size", bc.batchSize, "flush_interval", bc.flushInterval)
}

func (bc *BatchCollector) Track(event analytics.RankEvent) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: event.RunID, Value: event})
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()
	if full {
		go bc.flush(context.Background())
	}
}

// ObserveRun implements priority.RunObserver.
func (bc *BatchCollector) ObserveRun(ctx context.Context, res *priority.Result, err error) {
	bc.Track(analytics.EventFromRun(ctx, res, err))
}

// Close waits for the flush loop to exit. Cancel the Start context first.
func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		if limit := bc.batchSize * 3; len(bc.buffer) > limit {
			bc.logger.Warn("buffer overflow, events dropped", "dropped", len(bc.buffer)-limit)
			bc.buffer = bc.buffer[:limit]
		}
		bc.mu.Unlock()
		return
	}
	bc.logger.Debug("batch flushed", "events", len(batch))
}
