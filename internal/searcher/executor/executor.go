package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/summarysearch/summarysearch/internal/engine"
	"github.com/summarysearch/summarysearch/internal/normalizer"
	"github.com/summarysearch/summarysearch/internal/ranker"
	"github.com/summarysearch/summarysearch/pkg/logger"
)

type SearchResult struct {
	Query   string             `json:"query"`
	Terms   []string           `json:"terms"`
	Version uint64             `json:"version"`
	Results []ranker.ScoredDoc `json:"results"`
}

// Plan is a normalized query bound to the snapshot it will run against.
// Binding the snapshot up front keeps the cache key and the ranking on the
// same fit even if a refit lands in between.
type Plan struct {
	RawQuery string
	Terms    []string
	Snapshot *engine.Snapshot
}

type Executor struct {
	engine     *engine.Engine
	normalizer normalizer.Normalizer
	minScore   float64
	logger     *slog.Logger
}

func New(eng *engine.Engine, norm normalizer.Normalizer, minScore float64) *Executor {
	return &Executor{
		engine:     eng,
		normalizer: norm,
		minScore:   minScore,
		logger:     logger.WithComponent("query-executor"),
	}
}

// Plan normalizes query and pins the current snapshot. It fails with
// ErrNotFitted before the first successful fit.
func (e *Executor) Plan(query string) (*Plan, error) {
	snap, err := e.engine.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Plan{
		RawQuery: query,
		Terms:    e.normalizer.Normalize(query),
		Snapshot: snap,
	}, nil
}

func (e *Executor) Execute(ctx context.Context, plan *Plan, limit int) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := engine.SearchSnapshot(plan.Snapshot, plan.Terms, limit, e.minScore)
	if err != nil {
		return nil, fmt.Errorf("executing query %q: %w", plan.RawQuery, err)
	}
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"version", plan.Snapshot.Version,
		"results", len(results),
	)
	return &SearchResult{
		Query:   plan.RawQuery,
		Terms:   plan.Terms,
		Version: plan.Snapshot.Version,
		Results: results,
	}, nil
}
