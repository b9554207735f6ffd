// Command analytics aggregates rank-run events.
//
// It consumes the rank-events topic, keeps running totals in memory
// (outcomes, latency percentiles, survival rate, top popular entities,
// skipped sources by reason), snapshots them to Postgres when reachable and
// serves GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	agg := analytics.NewAggregator(nil)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RankEvents, analytics.HandleEvent(agg))
	defer consumer.Close()
	agg.SetConsumer(consumer)

	go func() {
		if err := agg.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.RankEvents)

	checker := health.NewChecker()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		store := aggregator.NewStore(db, cfg.Analytics.SnapshotRetain)
		if last, err := store.LatestSnapshot(ctx); err == nil && last != nil {
			slog.Info("previous snapshot found", "total_runs", last.TotalRuns)
		}
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}

	analyticsHandler := analytics.NewHandler(agg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
