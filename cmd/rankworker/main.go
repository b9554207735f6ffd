// Command rankworker consumes rank requests from Kafka and publishes ranked
// results.
//
// Usage:
//
//	go run ./cmd/rankworker [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/pipeline"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/worker"
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
	slog.Info("starting rank worker",
		"requests_topic", cfg.Kafka.Topics.RankRequests,
		"results_topic", cfg.Kafka.Topics.RankResults,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	p, err := pipeline.Build(ctx, cfg, m, pipeline.Options{})
	if err != nil {
		slog.Error("failed to build ranking pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	if cfg.Analytics.Enabled {
		eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RankEvents)
		defer eventsProducer.Close()
		bc := collector.NewBatchCollector(eventsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collectorCtx, stopCollector := context.WithCancel(context.Background())
		bc.Start(collectorCtx)
		defer func() {
			stopCollector()
			bc.Close()
		}()
		p.Manager.SetObserver(bc)
		slog.Info("batch analytics collector started", "topic", cfg.Kafka.Topics.RankEvents)
	}

	results := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RankResults)
	defer results.Close()

	w := worker.New(p.Manager, results, p.Annotator, cfg.Server.RequestTimeout)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RankRequests, w.Handle)
	defer consumer.Close()

	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		p.RegisterHealth(checker)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
		defer shutdownMetrics(context.Background())
	}

	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
		os.Exit(1)
	}

	slog.Info("rank worker stopped")
}
