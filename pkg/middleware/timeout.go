package middleware

import (
	"context"
	"net/http"
	"time"
)

// Deadline bounds every request's context by timeout. Ranking handlers watch
// the context and answer with the last completed phase when it expires, so
// the middleware does not write a response of its own.
func Deadline(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
