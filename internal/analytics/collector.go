package analytics

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/kafka"
)

// Collector publishes rank events asynchronously. Events are dropped when
// the buffer is full so a slow broker never delays a ranking response.
type Collector struct {
	publisher kafka.Publisher
	eventCh   chan RankEvent
	logger    *slog.Logger
	done      chan struct{}
}

func NewCollector(publisher kafka.Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan RankEvent, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track queues event for publishing.
func (c *Collector) Track(event RankEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "run_id", event.RunID)
	}
}

// ObserveRun implements priority.RunObserver.
func (c *Collector) ObserveRun(ctx context.Context, res *priority.Result, err error) {
	c.Track(EventFromRun(ctx, res, err))
}

// Close stops accepting events and waits for queued ones to be published.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event RankEvent) {
	if err := c.publisher.Publish(ctx, kafka.Event{Key: event.RunID, Value: event}); err != nil {
		c.logger.Error("failed to publish analytics event", "run_id", event.RunID, "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
