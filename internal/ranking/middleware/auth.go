// Package middleware holds the ranking API's caller-facing middleware:
// API key authentication, per-key rate limiting and CORS.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
)

// KeyValidator resolves a raw API key.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

type keyInfoKey struct{}

// Auth rejects requests without a valid API key. Health and metrics paths
// are exempt.
func Auth(v KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := v.Validate(r.Context(), key)
			switch {
			case err == nil:
			case errors.Is(err, apikey.ErrInvalidKey):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, apikey.ErrExpiredKey):
				writeError(w, http.StatusUnauthorized, "expired api key")
				return
			default:
				logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}
			ctx := context.WithValue(r.Context(), keyInfoKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyInfo returns the key attached by Auth, or nil.
func KeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(keyInfoKey{}).(*apikey.KeyInfo)
	return info
}

func exempt(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}

// extractAPIKey prefers Authorization: Bearer, then X-API-Key.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
