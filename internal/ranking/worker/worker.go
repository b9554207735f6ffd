// Package worker ranks candidate lists received from Kafka and publishes the
// outcome to a results topic.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/sentiment"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/source"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/vocabulary"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
)

// Request is the payload on the rank-requests topic. The message key is the
// request id when RequestID is empty.
type Request struct {
	RequestID string          `json:"request_id,omitempty"`
	Sources   []source.Source `json:"sources"`
	Target    []string        `json:"target,omitempty"`
	Annotate  bool            `json:"annotate,omitempty"`
}

// Response is published to the rank-results topic keyed by request id.
type Response struct {
	RequestID string           `json:"request_id"`
	Result    *priority.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Status    int              `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
}

type Worker struct {
	manager   *priority.Manager
	results   kafka.Publisher
	annotator *sentiment.Annotator
	timeout   time.Duration
	logger    *slog.Logger
}

// New builds a Worker. annotator may be nil; timeout <= 0 leaves runs
// unbounded.
func New(manager *priority.Manager, results kafka.Publisher, annotator *sentiment.Annotator, timeout time.Duration) *Worker {
	return &Worker{
		manager:   manager,
		results:   results,
		annotator: annotator,
		timeout:   timeout,
		logger:    slog.Default().With("component", "rank-worker"),
	}
}

// Handle is a kafka.MessageHandler. Every decodable request produces a
// Response, including failed runs. A run interrupted by shutdown returns an
// error so the message is not committed and is ranked again after restart.
func (w *Worker) Handle(ctx context.Context, key, value []byte) error {
	req, err := kafka.DecodeJSON[Request](value)
	if err != nil {
		return err
	}
	if req.RequestID == "" {
		req.RequestID = string(key)
	}
	ctx = logger.WithRequestID(ctx, req.RequestID)
	log := logger.FromContext(ctx).With("component", "rank-worker")

	runCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	mgr := w.manager
	if len(req.Target) > 0 {
		mgr = mgr.WithStore(vocabulary.NewStaticStore(req.Target))
	}
	res, err := mgr.Rank(runCtx, req.Sources)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("rank request %s interrupted: %w", req.RequestID, err)
	}
	if err == nil && req.Annotate && w.annotator != nil {
		res.Sources = w.annotator.Annotate(ctx, res.Sources)
	}

	resp := Response{
		RequestID: req.RequestID,
		Result:    res,
		Status:    http.StatusOK,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Status = apperrors.HTTPStatusCode(err)
		if !errors.Is(err, apperrors.ErrCancelled) && !errors.Is(err, apperrors.ErrInvalidInput) {
			log.Error("rank request failed", "error", err)
		}
	}

	if err := w.results.Publish(ctx, kafka.Event{Key: req.RequestID, Value: resp}); err != nil {
		return fmt.Errorf("publishing result for %s: %w", req.RequestID, err)
	}
	log.Info("rank request processed", "status", resp.Status, "candidates", len(req.Sources))
	return nil
}
