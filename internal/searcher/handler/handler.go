// Package handler exposes the search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/summarysearch/summarysearch/internal/corpus"
	"github.com/summarysearch/summarysearch/internal/engine"
	"github.com/summarysearch/summarysearch/internal/ranker"
	"github.com/summarysearch/summarysearch/internal/refresh"
	"github.com/summarysearch/summarysearch/internal/searcher/cache"
	"github.com/summarysearch/summarysearch/internal/searcher/executor"
	"github.com/summarysearch/summarysearch/pkg/config"
	apperrors "github.com/summarysearch/summarysearch/pkg/errors"
	"github.com/summarysearch/summarysearch/pkg/logger"
	"github.com/summarysearch/summarysearch/pkg/metrics"
)

// legacyLimit is the fixed result count of POST /search.
const legacyLimit = 100

const welcomeMessage = "Welcome to the document search engine!"

var errMissingLegacyQuery = apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
	"Missing 'query' parameter")

type SearchExecutor interface {
	Plan(query string) (*executor.Plan, error)
	Execute(ctx context.Context, plan *executor.Plan, limit int) (*executor.SearchResult, error)
}

// Refresher triggers refits and owns the display catalog of the last fit.
type Refresher interface {
	Refresh(ctx context.Context, trigger string) (*refresh.Result, error)
	Catalog() *corpus.Catalog
}

type Hit struct {
	DocID  string         `json:"doc_id"`
	Score  float64        `json:"score"`
	Record *corpus.Record `json:"record,omitempty"`
}

type SearchResponse struct {
	Query   string `json:"query"`
	Version uint64 `json:"version"`
	Total   int    `json:"total"`
	Results []Hit  `json:"results"`
}

type IndexStats struct {
	State          string    `json:"state"`
	Version        uint64    `json:"version"`
	Documents      int       `json:"documents"`
	VocabularySize int       `json:"vocabulary_size"`
	FittedAt       time.Time `json:"fitted_at"`
	CatalogVersion uint64    `json:"catalog_version"`
}

type Handler struct {
	executor     SearchExecutor
	engine       *engine.Engine
	cache        *cache.QueryCache
	refresher    Refresher
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds a Handler. queryCache and m may be nil.
func New(
	exec SearchExecutor,
	eng *engine.Engine,
	queryCache *cache.QueryCache,
	refresher Refresher,
	m *metrics.Metrics,
	cfg config.SearchConfig,
) *Handler {
	return &Handler{
		executor:     exec,
		engine:       eng,
		cache:        queryCache,
		refresher:    refresher,
		metrics:      m,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       logger.WithComponent("search-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Welcome)
	mux.HandleFunc("POST /search", h.LegacySearch)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/index/refresh", h.Refresh)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, welcomeMessage)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query, limit, err := h.parseSearchParams(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	result, err := h.search(r.Context(), query, limit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	catalog := h.refresher.Catalog()
	hits := make([]Hit, 0, len(result.Results))
	for _, doc := range result.Results {
		hit := Hit{DocID: doc.DocID, Score: doc.Score}
		if catalog != nil {
			if rec, ok := catalog.Lookup(doc.DocID); ok {
				hit.Record = &rec
			}
		}
		hits = append(hits, hit)
	}
	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Version: result.Version,
		Total:   len(hits),
		Results: hits,
	})
}

// parseSearchParams reads q and limit. limit defaults to the configured
// default and is capped at the configured maximum.
func (h *Handler) parseSearchParams(r *http.Request) (string, int, error) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		return "", 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"query parameter 'q' is required")
	}
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return "", 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"limit must be a positive integer, got %q", limitStr)
		}
		limit = min(parsed, h.maxResults)
	}
	return query, limit, nil
}

type legacyRequest struct {
	Query string `json:"query"`
}

// LegacySearch answers POST /search with a bare JSON array of the top display
// records. Ranked IDs missing from the catalog are skipped.
func (h *Handler) LegacySearch(w http.ResponseWriter, r *http.Request) {
	var req legacyRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req)
	if err != nil || strings.TrimSpace(req.Query) == "" {
		h.writeAppError(w, r, errMissingLegacyQuery)
		return
	}

	result, err := h.search(r.Context(), req.Query, legacyLimit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	records := make([]corpus.Record, 0, len(result.Results))
	if catalog := h.refresher.Catalog(); catalog != nil {
		for _, doc := range result.Results {
			if rec, ok := catalog.Lookup(doc.DocID); ok {
				records = append(records, rec)
			}
		}
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) search(ctx context.Context, query string, limit int) (*executor.SearchResult, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	plan, err := h.executor.Plan(query)
	if err != nil {
		h.observe("error", "none", start, 0)
		return nil, err
	}
	if len(plan.Terms) == 0 {
		h.observe("zero_result", "none", start, 0)
		return &executor.SearchResult{
			Query:   query,
			Terms:   plan.Terms,
			Version: plan.Snapshot.Version,
			Results: []ranker.ScoredDoc{},
		}, nil
	}

	var result *executor.SearchResult
	cacheStatus := "disabled"
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, plan, limit, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}
	if err != nil {
		h.observe("error", cacheStatus, start, 0)
		log.Error("search execution failed", "query", query, "error", err)
		return nil, err
	}

	resultType := "hit"
	if len(result.Results) == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheStatus, start, len(result.Results))
	log.Info("search completed",
		"query", query,
		"version", result.Version,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (h *Handler) observe(resultType, cacheStatus string, start time.Time, returned int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	switch cacheStatus {
	case "hit":
		h.metrics.CacheHitsTotal.Inc()
	case "miss":
		h.metrics.CacheMissesTotal.Inc()
	}
	if resultType != "error" {
		h.metrics.SearchResultsCount.Observe(float64(returned))
	}
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.refresher.Refresh(r.Context(), "api")
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats := IndexStats{State: h.engine.State().String()}
	if snap, err := h.engine.Snapshot(); err == nil {
		stats.Version = snap.Version
		stats.Documents = snap.DocumentCount()
		stats.VocabularySize = snap.Vocabulary.Len()
		stats.FittedAt = snap.FittedAt
	}
	if catalog := h.refresher.Catalog(); catalog != nil {
		stats.CatalogVersion = catalog.Version()
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// writeAppError maps err to a status code and a client-safe message. 5xx
// details stay in the log.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	switch {
	case apperrors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		message = "request timeout"
	case apperrors.As(err, &appErr):
		message = appErr.Message
	case apperrors.Is(err, apperrors.ErrNotFitted):
		message = "search index is not ready"
	case status >= http.StatusInternalServerError:
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	h.writeError(w, status, message)
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
