//go:build integration

// Package integration contains tests that verify the interaction between
// ranking service components. These tests use httptest servers with real
// handler wiring, a real page fetcher and a real PostgreSQL database for API
// keys and the target vocabulary.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/popular"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/handler"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/router"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/postgres"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "osint_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "osint"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

var pages = map[string]string{
	"/kyiv":    "<html><body><h1>Kyiv shelled</h1><p>Explosions were heard in Kyiv and Kharkiv overnight.</p></body></html>",
	"/weather": "<html><body><p>Sunny spells and light winds.</p></body></html>",
	"/nato":    "<html><body><p>NATO ministers met in Brussels to discuss Kyiv.</p></body></html>",
}

// newPageServer serves the fixed candidate pages.
func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newRankerServer wires the ranking service the way cmd/ranker does, backed
// by a real PostgreSQL database.
func newRankerServer(t *testing.T, db *postgres.Client) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.Fetch.RequestsPerSecond = 0

	fetcher := fetch.NewHTTPFetcher(cfg.Fetch, nil)
	ext := extractor.NewHeuristicExtractor()
	store := vocabulary.NewPostgresStore(db)
	finder := popular.NewFinder(fetcher, ext, popular.ConfigFrom(cfg.Popular, cfg.Scoring.Workers), nil)
	mgr := priority.NewManager(fetcher, store, finder, priority.ConfigFrom(cfg.Scoring), nil)

	h := handler.New(handler.Deps{Manager: mgr, Extractor: ext, Writer: store}, handler.Config{MaxSources: cfg.Server.MaxSources})

	validator := apikey.NewValidator(db)
	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping, true))

	srv := httptest.NewServer(router.New(h, router.Options{
		Validator:      validator,
		Limiter:        ratelimit.New(time.Minute),
		RateWindow:     time.Minute,
		RequestTimeout: time.Minute,
		Health:         checker,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func createKey(t *testing.T, db *postgres.Client, name string, limit int) string {
	t.Helper()
	raw, err := apikey.NewValidator(db).CreateKey(t.Context(), name, limit, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}
	return raw
}

func post(t *testing.T, url, key string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestHealthEndpoint verifies the readiness probe is reachable without a key.
func TestHealthEndpoint(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newRankerServer(t, db)

	resp, err := http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

// TestUnauthenticatedRequestRejected verifies that API endpoints reject
// requests without an API key.
func TestUnauthenticatedRequestRejected(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newRankerServer(t, db)

	for _, path := range []string{"/api/v1/rank", "/api/v1/discover", "/api/v1/targets"} {
		resp := post(t, srv.URL+path, "", map[string]any{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("POST %s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

// TestTargetsThenRank stores a target vocabulary in PostgreSQL, then ranks
// pages fetched over HTTP against it.
func TestTargetsThenRank(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newRankerServer(t, db)
	pagesSrv := newPageServer(t)
	key := createKey(t, db, "targets-rank-test", 100)

	resp := post(t, srv.URL+"/api/v1/targets", key, map[string]string{
		"statement": "Russian forces shelled Kyiv overnight, officials in Kyiv said.",
	})
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("targets: expected 201, got %d: %s", resp.StatusCode, body)
	}
	resp.Body.Close()

	sources := []map[string]string{
		{"url": pagesSrv.URL + "/kyiv", "title": "Kyiv shelled"},
		{"url": pagesSrv.URL + "/weather", "title": "Weather"},
		{"url": pagesSrv.URL + "/nato", "title": "NATO meeting"},
		{"url": pagesSrv.URL + "/missing", "title": "Gone"},
	}
	resp = post(t, srv.URL+"/api/v1/rank", key, map[string]any{"sources": sources})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("rank: expected 200, got %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Phase    string `json:"phase"`
		Complete bool   `json:"complete"`
		Sources  []struct {
			URL   string `json:"url"`
			Score int    `json:"score"`
		} `json:"sources"`
		Stats struct {
			Candidates    int            `json:"candidates"`
			TargetSkipped map[string]int `json:"target_skipped"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding rank response: %v", err)
	}
	if !result.Complete || result.Phase != "DONE" {
		t.Fatalf("phase = %s complete = %v", result.Phase, result.Complete)
	}
	if len(result.Sources) != 2 {
		t.Fatalf("expected 2 survivors, got %+v", result.Sources)
	}
	for i, s := range result.Sources {
		if s.Score < 10 {
			t.Errorf("source %d (%s): score %d below one target hit", i, s.URL, s.Score)
		}
		if i > 0 && s.Score > result.Sources[i-1].Score {
			t.Errorf("sources not sorted by score: %+v", result.Sources)
		}
	}
	if result.Stats.Candidates != 4 {
		t.Errorf("candidates = %d", result.Stats.Candidates)
	}
	if len(result.Stats.TargetSkipped) == 0 {
		t.Errorf("expected the missing page to be reported as skipped")
	}
}

// TestAPIKeyLifecycle creates a key, uses it, revokes it and verifies the
// revoked key is rejected.
func TestAPIKeyLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newRankerServer(t, db)
	validator := apikey.NewValidator(db)

	rawKey := createKey(t, db, "lifecycle-test", 100)

	resp := post(t, srv.URL+"/api/v1/rank", rawKey, map[string]any{"sources": []any{}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if err := validator.RevokeKey(t.Context(), rawKey); err != nil {
		t.Fatalf("revoking key: %v", err)
	}

	resp = post(t, srv.URL+"/api/v1/rank", rawKey, map[string]any{"sources": []any{}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after revoke, got %d", resp.StatusCode)
	}
}

// TestRateLimiting verifies that per-key rate limits are enforced.
func TestRateLimiting(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newRankerServer(t, db)
	rawKey := createKey(t, db, "ratelimit-test", 2)

	for i := range 2 {
		resp := post(t, srv.URL+"/api/v1/rank", rawKey, map[string]any{"sources": []any{}})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp := post(t, srv.URL+"/api/v1/rank", rawKey, map[string]any{"sources": []any{}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

// TestTooManySources verifies the request size cap.
func TestTooManySources(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newRankerServer(t, db)
	rawKey := createKey(t, db, "size-test", 100)

	sources := make([]map[string]string, 501)
	for i := range sources {
		sources[i] = map[string]string{"url": fmt.Sprintf("https://example.com/%d", i)}
	}
	resp := post(t, srv.URL+"/api/v1/rank", rawKey, map[string]any{"sources": sources})
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", resp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
