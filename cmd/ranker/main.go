// Command ranker serves the ranking HTTP API.
//
// Usage:
//
//	go run ./cmd/ranker [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/handler"
	rankmw "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/middleware"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/pipeline"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/router"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/metrics"
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
	slog.Info("starting ranker", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	p, err := pipeline.Build(ctx, cfg, m, pipeline.Options{NeedDB: cfg.Auth.Enabled})
	if err != nil {
		slog.Error("failed to build ranking pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	checker := health.NewChecker()
	p.RegisterHealth(checker)

	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RankEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		p.Manager.SetObserver(collector)
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.RankEvents)
	}

	opts := router.Options{
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
		Health:         checker,
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts.CORS = rankmw.DefaultCORSConfig()
		opts.CORS.AllowOrigins = cfg.Server.CORSOrigins
	}
	if cfg.Auth.Enabled {
		limiter := ratelimit.New(cfg.Auth.RateLimitWindow)
		go limiter.Run(ctx, cfg.Auth.RateLimitWindow)
		opts.Validator = apikey.NewValidator(p.DB)
		opts.Limiter = limiter
		opts.RateWindow = cfg.Auth.RateLimitWindow
		slog.Info("api key authentication enabled", "rate_limit_window", cfg.Auth.RateLimitWindow)
	}

	h := handler.New(handler.Deps{
		Manager:   p.Manager,
		Providers: p.Providers,
		Extractor: p.Extractor,
		Writer:    p.Store,
		Annotator: p.Annotator,
	}, handler.Config{
		MaxSources:       cfg.Server.MaxSources,
		DiscoveryTimeout: cfg.Discovery.Timeout,
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(h, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Deferred closes run only after in-flight handlers finish.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ranker listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("ranker stopped")
}
