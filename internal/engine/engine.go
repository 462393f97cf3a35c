// Package engine owns the fitted TF-IDF state of the search service. A fit
// builds a complete, immutable Snapshot (vocabulary, weights, index) and
// publishes it with a single pointer swap, so concurrent queries always see
// the vocabulary and index of one fit.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/summarysearch/summarysearch/internal/index"
	"github.com/summarysearch/summarysearch/internal/ranker"
	"github.com/summarysearch/summarysearch/internal/vectorizer"
	apperrors "github.com/summarysearch/summarysearch/pkg/errors"
	"github.com/summarysearch/summarysearch/pkg/logger"
)

// Document is one normalized corpus entry.
type Document struct {
	ID     string
	Tokens []string
}

type State int

const (
	StateUnfitted State = iota
	StateFitted
)

func (s State) String() string {
	if s == StateFitted {
		return "fitted"
	}
	return "unfitted"
}

// Snapshot is the result of one fit. It is never modified after Fit
// publishes it.
type Snapshot struct {
	Version    uint64
	Vocabulary *vectorizer.Vocabulary
	Weights    vectorizer.WeightTable
	Index      *index.Index
	FittedAt   time.Time
}

// DocumentCount is the number of corpus documents in the snapshot.
func (s *Snapshot) DocumentCount() int {
	return s.Index.Len()
}

// Vectorize converts tokens into a vector over this snapshot's vocabulary.
func (s *Snapshot) Vectorize(tokens []string) vectorizer.Vector {
	return vectorizer.Transform(tokens, s.Vocabulary, s.Weights)
}

type Options struct {
	// FitConcurrency bounds the number of goroutines vectorizing documents
	// during a fit. Values below 1 mean 1.
	FitConcurrency int
	MatchMode      vectorizer.MatchMode
}

type Engine struct {
	current atomic.Pointer[Snapshot]
	fitMu   sync.Mutex
	version uint64
	opts    Options
	logger  *slog.Logger
}

func New(opts Options) *Engine {
	if opts.FitConcurrency < 1 {
		opts.FitConcurrency = 1
	}
	return &Engine{
		opts:   opts,
		logger: logger.WithComponent("engine"),
	}
}

// Fit builds a new snapshot from corpus and publishes it. corpus order is the
// tie-break order for equal scores. On error nothing is published and the
// previous snapshot, if any, stays in place. An empty corpus is accepted and
// produces a snapshot that matches nothing.
func (e *Engine) Fit(ctx context.Context, corpus []Document) error {
	e.fitMu.Lock()
	defer e.fitMu.Unlock()

	start := time.Now()
	if err := validateCorpus(corpus); err != nil {
		return err
	}

	docs := make([][]string, len(corpus))
	for i, d := range corpus {
		docs[i] = d.Tokens
	}
	vocab := vectorizer.BuildVocabulary(docs)
	df := vectorizer.DocumentFrequencies(docs, vocab, e.opts.MatchMode)
	weights := vectorizer.ComputeWeights(df, len(corpus))

	vectors := make([]vectorizer.Vector, len(corpus))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FitConcurrency)
	for i := range corpus {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vectors[i] = vectorizer.Transform(docs[i], vocab, weights)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("vectorizing corpus: %w", err)
	}

	builder := index.NewBuilder(vocab.Len(), len(corpus))
	for i, d := range corpus {
		if err := builder.Add(d.ID, vectors[i]); err != nil {
			return fmt.Errorf("building index: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fit abandoned before publish: %w", err)
	}

	e.version++
	snap := &Snapshot{
		Version:    e.version,
		Vocabulary: vocab,
		Weights:    weights,
		Index:      builder.Build(),
		FittedAt:   time.Now().UTC(),
	}
	e.current.Store(snap)

	if len(corpus) == 0 {
		e.logger.Warn("fitted empty corpus, all queries will return no results", "version", snap.Version)
	}
	e.logger.Info("engine fitted",
		"version", snap.Version,
		"documents", snap.DocumentCount(),
		"vocabulary_size", vocab.Len(),
		"df_mode", e.opts.MatchMode.String(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Snapshot returns the currently published snapshot.
func (e *Engine) Snapshot() (*Snapshot, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, apperrors.ErrNotFitted
	}
	return snap, nil
}

func (e *Engine) State() State {
	if e.current.Load() == nil {
		return StateUnfitted
	}
	return StateFitted
}

// VectorizeQuery converts normalized query tokens into a vector over the
// current vocabulary. An empty token sequence yields a zero vector.
func (e *Engine) VectorizeQuery(tokens []string) (vectorizer.Vector, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Vectorize(tokens), nil
}

// Search ranks the current index against tokens and returns at most topN
// matches with a positive score.
func (e *Engine) Search(tokens []string, topN int) ([]ranker.ScoredDoc, error) {
	return e.SearchWithMinScore(tokens, topN, 0)
}

// SearchWithMinScore is Search with an additional score floor; scores at or
// below max(minScore, 0) are dropped.
func (e *Engine) SearchWithMinScore(tokens []string, topN int, minScore float64) ([]ranker.ScoredDoc, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	return SearchSnapshot(snap, tokens, topN, minScore)
}

// SearchSnapshot runs a query against a specific snapshot. Callers that need
// the snapshot version alongside the results (for caching or display) load
// the snapshot once and use this.
func SearchSnapshot(snap *Snapshot, tokens []string, topN int, minScore float64) ([]ranker.ScoredDoc, error) {
	if topN < 1 {
		return nil, fmt.Errorf("topN must be positive, got %d: %w", topN, apperrors.ErrInvalidInput)
	}
	results, err := ranker.Rank(snap.Vectorize(tokens), snap.Index, topN, minScore)
	if err != nil {
		return nil, fmt.Errorf("ranking against snapshot %d: %w", snap.Version, err)
	}
	return results, nil
}

func validateCorpus(corpus []Document) error {
	seen := make(map[string]struct{}, len(corpus))
	for i, d := range corpus {
		if d.ID == "" {
			return fmt.Errorf("document %d has empty id: %w", i, apperrors.ErrInvalidInput)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("duplicate document id %q: %w", d.ID, apperrors.ErrInvalidInput)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
