package vocabulary

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/postgres"
)

// PostgresStore keeps target entities in the target_entities table.
type PostgresStore struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewPostgresStore(client *postgres.Client) *PostgresStore {
	return &PostgresStore{
		client: client,
		logger: slog.Default().With("component", "vocabulary-postgres"),
	}
}

func (s *PostgresStore) TargetVocabulary(ctx context.Context) ([]string, error) {
	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT text, SUM(mentions) AS total
		FROM target_entities
		GROUP BY text
		ORDER BY total DESC, text ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying target entities: %v", apperrors.ErrVocabularyUnavailable, err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		var total int
		if err := rows.Scan(&text, &total); err != nil {
			return nil, fmt.Errorf("%w: scanning target entity: %v", apperrors.ErrVocabularyUnavailable, err)
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating target entities: %v", apperrors.ErrVocabularyUnavailable, err)
	}
	return texts, nil
}

// SaveEntities replaces the stored set with records in one transaction.
func (s *PostgresStore) SaveEntities(ctx context.Context, records []Record) error {
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM target_entities`); err != nil {
			return fmt.Errorf("clearing target entities: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO target_entities (label, text, mentions)
			VALUES ($1, $2, $3)
			ON CONFLICT (label, text) DO UPDATE
			SET mentions = target_entities.mentions + EXCLUDED.mentions`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range records {
			if r.Text == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, r.Label, r.Text, max(r.Mentions, 1)); err != nil {
				return fmt.Errorf("inserting %q: %w", r.Text, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("target entities saved", "count", len(records))
	return nil
}
