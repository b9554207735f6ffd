// Command rank ranks one candidate list and prints the result as JSON.
//
// Usage:
//
//	rank [-config path] [-in sources.json | -query "kyiv shelling"] [-target Kyiv,NATO] [-annotate]
//
// Sources are read from -in ("-" for stdin) unless -query is given, in which
// case candidates are discovered from the configured feed. Logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/ranking/pipeline"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/source"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitCancelled = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	in := flag.String("in", "-", `sources JSON file, "-" for stdin`)
	query := flag.String("query", "", "discover candidates for this query instead of reading -in")
	target := flag.String("target", "", "comma-separated target vocabulary overriding the configured store")
	annotate := flag.Bool("annotate", false, "attach headline sentiment to ranked sources")
	timeout := flag.Duration("timeout", 0, "abort the run after this long and print the last completed phase")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitUsage
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	p, err := pipeline.Build(ctx, cfg, nil, pipeline.Options{TargetOverride: splitList(*target)})
	if err != nil {
		slog.Error("failed to build ranking pipeline", "error", err)
		return exitError
	}
	defer p.Close()

	var sources []source.Source
	if *query != "" {
		sources, err = discover(ctx, p, cfg, *query)
	} else {
		sources, err = readSources(*in)
	}
	if err != nil {
		slog.Error("failed to load candidates", "error", err)
		return exitError
	}

	res, rankErr := p.Manager.Rank(ctx, sources)
	if res == nil {
		slog.Error("ranking failed", "error", rankErr)
		if errors.Is(rankErr, apperrors.ErrInvalidInput) {
			return exitUsage
		}
		return exitError
	}
	if rankErr == nil && *annotate && p.Annotator != nil {
		res.Sources = p.Annotator.Annotate(ctx, res.Sources)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		slog.Error("failed to write result", "error", err)
		return exitError
	}
	if rankErr != nil {
		slog.Warn("ranking incomplete", "phase", res.Phase, "error", rankErr)
		return exitCancelled
	}
	return exitOK
}

func discover(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config, query string) ([]source.Source, error) {
	if len(p.Providers) == 0 {
		return nil, errors.New("discovery is not configured")
	}
	start := time.Now()
	found, err := discovery.Aggregate(ctx, p.Providers, []string{query}, cfg.Discovery.Timeout)
	if err != nil {
		return nil, err
	}
	slog.Info("candidates discovered", "query", query, "count", len(found), "took", time.Since(start).Round(time.Millisecond))
	return found, nil
}

func readSources(path string) ([]source.Source, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var sources []source.Source
	if err := json.NewDecoder(r).Decode(&sources); err != nil {
		return nil, fmt.Errorf("decoding sources: %w", err)
	}
	return sources, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
