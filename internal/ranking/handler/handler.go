// Package handler serves the ranking HTTP API: ranking a posted candidate
// list, discovering and ranking candidates for search queries, and storing
// target entities extracted from an intelligence statement.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/priority"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/sentiment"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/source"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/vocabulary"
	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
)

const maxBodyBytes = 8 << 20

// Config bounds request sizes and discovery fan-out.
type Config struct {
	MaxSources       int
	MaxQueries       int
	DiscoveryTimeout time.Duration
}

// Deps are the collaborators a Handler needs. Providers, Extractor, Writer
// and Annotator may be nil; the endpoints that need them then answer 503.
type Deps struct {
	Manager   *priority.Manager
	Providers []discovery.Provider
	Extractor extractor.Extractor
	Writer    vocabulary.Writer
	Annotator *sentiment.Annotator
}

type Handler struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

func New(deps Deps, cfg Config) *Handler {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 500
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 10
	}
	return &Handler{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default().With("component", "ranking-handler"),
	}
}

type rankRequest struct {
	Sources []source.Source `json:"sources"`
	Target  []string        `json:"target,omitempty"`
	// Annotate requests sentiment on the ranked headlines.
	Annotate bool `json:"annotate,omitempty"`
}

type discoverRequest struct {
	Queries  []string `json:"queries"`
	Target   []string `json:"target,omitempty"`
	Annotate bool     `json:"annotate,omitempty"`
}

type targetsRequest struct {
	Statement string `json:"statement"`
}

type rankResponse struct {
	*priority.Result
	Discovered int    `json:"discovered,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Rank handles POST /api/v1/rank.
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Sources) > h.cfg.MaxSources {
		h.writeError(w, http.StatusRequestEntityTooLarge, "too many sources")
		return
	}
	h.rank(w, r, req.Sources, req.Target, req.Annotate, 0)
}

// Discover handles POST /api/v1/discover: candidates are gathered from the
// feed providers for every query, then ranked.
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if !h.decode(w, r, &req) {
		return
	}
	queries := make([]string, 0, len(req.Queries))
	for _, q := range req.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one query is required")
		return
	}
	if len(queries) > h.cfg.MaxQueries {
		h.writeError(w, http.StatusRequestEntityTooLarge, "too many queries")
		return
	}
	if len(h.deps.Providers) == 0 {
		h.writeError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}

	found, err := discovery.Aggregate(r.Context(), h.deps.Providers, queries, h.cfg.DiscoveryTimeout)
	if err != nil {
		logger.FromContext(r.Context()).Error("discovery failed", "queries", len(queries), "error", err)
		h.writeError(w, http.StatusBadGateway, "discovery failed")
		return
	}
	if len(found) > h.cfg.MaxSources {
		found = found[:h.cfg.MaxSources]
	}
	h.rank(w, r, found, req.Target, req.Annotate, len(found))
}

// Targets handles POST /api/v1/targets: entities in the statement replace
// the stored target vocabulary.
func (h *Handler) Targets(w http.ResponseWriter, r *http.Request) {
	var req targetsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Statement) == "" {
		h.writeError(w, http.StatusBadRequest, "statement is required")
		return
	}
	if h.deps.Extractor == nil || h.deps.Writer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "target storage is not configured")
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	records, err := vocabulary.ExtractTargets(ctx, h.deps.Extractor, req.Statement)
	if err != nil {
		log.Error("target extraction failed", "error", err)
		h.writeError(w, http.StatusBadGateway, "entity extraction failed")
		return
	}
	if err := h.deps.Writer.SaveEntities(ctx, records); err != nil {
		log.Error("saving target entities failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "saving target entities failed")
		return
	}
	log.Info("target vocabulary replaced", "entities", len(records))

	resp := map[string]any{
		"entities": records,
		"count":    len(records),
	}
	if h.deps.Annotator != nil {
		if s, err := h.deps.Annotator.Assess(ctx, req.Statement); err == nil {
			resp["sentiment"] = s
		} else {
			log.Debug("statement not classified", "error", err)
		}
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) rank(w http.ResponseWriter, r *http.Request, sources []source.Source, target []string, annotate bool, discovered int) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	mgr := h.deps.Manager
	if len(target) > 0 {
		mgr = mgr.WithStore(vocabulary.NewStaticStore(target))
	}

	res, err := mgr.Rank(ctx, sources)
	if res == nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError || status == http.StatusFailedDependency {
			log.Error("ranking failed", "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}

	if annotate && h.deps.Annotator != nil && err == nil {
		res.Sources = h.deps.Annotator.Annotate(ctx, res.Sources)
	}

	resp := rankResponse{Result: res, Discovered: discovered}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = apperrors.HTTPStatusCode(err)
		if errors.Is(err, apperrors.ErrCancelled) {
			log.Warn("ranking cut short", "phase", res.Phase, "error", err)
		}
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
