package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
)

type EventType string

const EventRankRun EventType = "rank_run"

// Run outcomes.
const (
	OutcomeDone      = "done"
	OutcomeEmpty     = "empty"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// RankEvent summarises one ranking run.
type RankEvent struct {
	Type                 EventType      `json:"type"`
	RunID                string         `json:"run_id"`
	RequestID            string         `json:"request_id,omitempty"`
	Outcome              string         `json:"outcome"`
	Phase                string         `json:"phase,omitempty"`
	Error                string         `json:"error,omitempty"`
	Candidates           int            `json:"candidates"`
	TargetVocabularySize int            `json:"target_vocabulary_size"`
	Survivors            int            `json:"survivors"`
	Returned             int            `json:"returned"`
	PopularVocabulary    []string       `json:"popular_vocabulary,omitempty"`
	TargetSkipped        map[string]int `json:"target_skipped,omitempty"`
	PopularSkipped       map[string]int `json:"popular_skipped,omitempty"`
	LatencyMs            int64          `json:"latency_ms"`
	Timestamp            time.Time      `json:"timestamp"`
}

// EventFromRun builds the event for a finished Rank call.
func EventFromRun(ctx context.Context, res *priority.Result, err error) RankEvent {
	ev := RankEvent{
		Type:      EventRankRun,
		RunID:     logger.RunID(ctx),
		RequestID: logger.RequestID(ctx),
		Timestamp: time.Now().UTC(),
	}
	if res != nil {
		ev.RunID = res.RunID
		ev.Phase = string(res.Phase)
		ev.Candidates = res.Stats.Candidates
		ev.TargetVocabularySize = res.Stats.TargetVocabularySize
		ev.Survivors = res.Stats.Survivors
		ev.Returned = res.Stats.Returned
		ev.PopularVocabulary = res.PopularVocabulary
		ev.TargetSkipped = res.Stats.TargetSkipped
		ev.PopularSkipped = res.Stats.PopularSkipped
		ev.LatencyMs = res.Stats.DurationMS
	}
	switch {
	case errors.Is(err, apperrors.ErrCancelled):
		ev.Outcome = OutcomeCancelled
	case err != nil:
		ev.Outcome = OutcomeError
	case ev.Returned == 0:
		ev.Outcome = OutcomeEmpty
	default:
		ev.Outcome = OutcomeDone
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
