// Package ranker scores indexed document vectors against a query vector by
// cosine similarity and returns the best matches.
package ranker

import (
	"fmt"
	"math"
	"sort"

	"github.com/summarysearch/summarysearch/internal/index"
	"github.com/summarysearch/summarysearch/internal/vectorizer"
	apperrors "github.com/summarysearch/summarysearch/pkg/errors"
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Rank scores every entry of idx against query. Entries scoring at or below
// max(minScore, 0) are dropped; the rest are sorted by descending score with
// ties kept in index order, then truncated to topN. topN <= 0 means no limit.
//
// query and every indexed vector must share a dimension; a mismatch returns
// ErrDimensionMismatch without partial results.
func Rank(query vectorizer.Vector, idx *index.Index, topN int, minScore float64) ([]ScoredDoc, error) {
	if len(query) != idx.Dimension() {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(query), idx.Dimension(), apperrors.ErrDimensionMismatch)
	}
	threshold := math.Max(minScore, 0)
	querySq := query.SquaredNorm()

	result := make([]ScoredDoc, 0)
	if querySq == 0 {
		return result, nil
	}
	for i := 0; i < idx.Len(); i++ {
		entry := idx.At(i)
		if len(entry.Vector) != len(query) {
			return nil, fmt.Errorf("document %q has %d dimensions, query has %d: %w",
				entry.DocID, len(entry.Vector), len(query), apperrors.ErrDimensionMismatch)
		}
		score := cosine(query, entry.Vector, querySq)
		if score <= threshold {
			continue
		}
		result = append(result, ScoredDoc{DocID: entry.DocID, Score: score})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	if topN > 0 && len(result) > topN {
		result = result[:topN]
	}
	return result, nil
}

// CosineSimilarity returns dot(a,b) / (|a| * |b|), or 0 when either vector has
// zero magnitude. a and b must have the same length.
func CosineSimilarity(a, b vectorizer.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("comparing %d and %d dimensions: %w", len(a), len(b), apperrors.ErrDimensionMismatch)
	}
	return cosine(a, b, a.SquaredNorm()), nil
}

// cosine takes a's squared norm so Rank computes it once per query. Taking a
// single square root keeps self-similarity at exactly 1.
func cosine(a, b vectorizer.Vector, sumA float64) float64 {
	var dot, sumB float64
	for i := range a {
		dot += a[i] * b[i]
		sumB += b[i] * b[i]
	}
	if sumA == 0 || sumB == 0 {
		return 0
	}
	score := dot / math.Sqrt(sumA*sumB)
	// rounding can push parallel vectors a hair outside [-1, 1]
	return math.Max(-1, math.Min(1, score))
}
