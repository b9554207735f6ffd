// Package apikey manages the API keys that callers of the ranking service
// present. Only the SHA-256 of a key is stored; the raw key is shown once at
// creation.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/postgres"
)

// keyPrefix marks raw keys so they are recognisable in config and logs.
const keyPrefix = "osr_"

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo describes a stored key. RateLimit is the number of ranking
// requests allowed per limiter window.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the key is past its expiry at now.
func (k *KeyInfo) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey"),
	}
}

const keyColumns = `id, name, rate_limit, created_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (KeyInfo, error) {
	var (
		k         KeyInfo
		id        int64
		expiresAt sql.NullTime
	)
	if err := row.Scan(&id, &k.Name, &k.RateLimit, &k.CreatedAt, &expiresAt); err != nil {
		return KeyInfo{}, err
	}
	k.ID = fmt.Sprint(id)
	if expiresAt.Valid {
		t := expiresAt.Time
		k.ExpiresAt = &t
	}
	return k, nil
}

// Validate returns the active key matching rawKey.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	if !strings.HasPrefix(rawKey, keyPrefix) {
		return nil, ErrInvalidKey
	}
	row := v.db.DB.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1 AND is_active`,
		HashKey(rawKey),
	)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if k.Expired(time.Now()) {
		return nil, ErrExpiredKey
	}
	return &k, nil
}

// CreateKey stores a new key and returns it in raw form.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error) {
	rawKey, err := generateRawKey()
	if err != nil {
		return "", err
	}
	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	if _, err := v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, expires_at) VALUES ($1, $2, $3, $4)`,
		HashKey(rawKey), name, rateLimit, expiry,
	); err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "name", name, "rate_limit", rateLimit)
	return rawKey, nil
}

func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	res, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1 AND is_active`,
		HashKey(rawKey),
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidKey
	}
	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the hex SHA-256 of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(b), nil
}
