// Package router assembles the ranking service's routes and middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/handler"
	rankmw "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/middleware"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/middleware"
)

// Options selects the optional pieces of the chain. A nil Validator turns
// authentication and rate limiting off.
type Options struct {
	Validator      rankmw.KeyValidator
	Limiter        *ratelimit.Limiter
	RateWindow     time.Duration
	CORS           rankmw.CORSConfig
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	Health         *health.Checker
	Analytics      *analytics.Handler
}

// New builds the service handler.
//
// Routes:
//
//	POST /api/v1/rank       rank a posted candidate list
//	POST /api/v1/discover   discover candidates for queries, then rank
//	POST /api/v1/targets    replace the target vocabulary from a statement
//	GET  /api/v1/analytics  aggregated run statistics (when configured)
//	GET  /health/live
//	GET  /health/ready
//
// Middleware, outermost first:
//
//	RequestID → Metrics → CORS → Auth → RateLimit → Deadline → mux
func New(h *handler.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/rank", h.Rank)
	mux.HandleFunc("POST /api/v1/discover", h.Discover)
	mux.HandleFunc("POST /api/v1/targets", h.Targets)
	if opts.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", opts.Analytics.Stats)
	}
	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	chain = pkgmw.Deadline(opts.RequestTimeout)(chain)
	if opts.Validator != nil {
		if opts.Limiter != nil {
			chain = rankmw.RateLimit(opts.Limiter, opts.RateWindow)(chain)
		}
		chain = rankmw.Auth(opts.Validator)(chain)
	}
	if len(opts.CORS.AllowOrigins) > 0 {
		chain = rankmw.CORS(opts.CORS)(chain)
	}
	if opts.Metrics != nil {
		chain = pkgmw.Metrics(opts.Metrics)(chain)
	}
	chain = pkgmw.RequestID(chain)
	return chain
}
