package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/auth/ratelimit"
)

// RateLimit throttles each authenticated key to its configured limit.
// Requests that carry no key info pass through; Auth decides whether that
// is allowed.
func RateLimit(limiter *ratelimit.Limiter, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := KeyInfo(r.Context())
			if info == nil || exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(info.ID, info.RateLimit) {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
