// Package aggregator persists periodic snapshots of the rank-run aggregate
// to PostgreSQL so totals survive restarts of the analytics service.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/postgres"
)

// Store reads and writes the analytics_snapshots table.
type Store struct {
	db        *postgres.Client
	retention time.Duration
	logger    *slog.Logger
}

// NewStore builds a Store. Snapshots older than retention are pruned after
// each save; zero keeps everything.
func NewStore(db *postgres.Client, retention time.Duration) *Store {
	return &Store{
		db:        db,
		retention: retention,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			data, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("saving analytics snapshot: %w", err)
		}
		if s.retention > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM analytics_snapshots WHERE captured_at < $1`,
				time.Now().UTC().Add(-s.retention),
			); err != nil {
				return fmt.Errorf("pruning analytics snapshots: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("analytics snapshot saved", "total_runs", stats.TotalRuns)
	return nil
}

// LatestSnapshot returns the newest snapshot, or nil when none exist.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// StartPeriodicSave snapshots agg every interval until ctx ends, then
// writes one final snapshot.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
