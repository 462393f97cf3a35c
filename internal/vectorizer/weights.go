package vectorizer

import (
	"fmt"
	"math"
	"strings"
)

// MatchMode selects how document frequency decides that a document contains
// a term.
type MatchMode int

const (
	// MatchToken counts a document when the term is one of its tokens.
	MatchToken MatchMode = iota
	// MatchSubstring counts a document when the term occurs anywhere in its
	// space-joined tokens, so "cat" also matches "category". It exists for
	// score parity with the legacy service only.
	MatchSubstring
)

func ParseMatchMode(s string) (MatchMode, error) {
	switch s {
	case "", "token":
		return MatchToken, nil
	case "substring":
		return MatchSubstring, nil
	default:
		return MatchToken, fmt.Errorf("unknown document frequency mode %q", s)
	}
}

func (m MatchMode) String() string {
	if m == MatchSubstring {
		return "substring"
	}
	return "token"
}

// DocumentFrequencies returns, for each vocabulary position, the number of
// documents containing that term at least once.
func DocumentFrequencies(docs [][]string, vocab *Vocabulary, mode MatchMode) []int {
	df := make([]int, vocab.Len())
	switch mode {
	case MatchSubstring:
		for _, doc := range docs {
			joined := strings.Join(doc, " ")
			for i, term := range vocab.terms {
				if strings.Contains(joined, term) {
					df[i]++
				}
			}
		}
	default:
		seen := make([]int, vocab.Len())
		for d, doc := range docs {
			// seen[pos] holds the last document (1-based) that counted pos.
			for _, token := range doc {
				pos, ok := vocab.positions[token]
				if !ok || seen[pos] == d+1 {
					continue
				}
				seen[pos] = d + 1
				df[pos]++
			}
		}
	}
	return df
}

// WeightTable holds the IDF weight of each vocabulary term, by position.
type WeightTable []float64

// ComputeWeights applies the smoothed IDF formula
//
//	weight(t) = ln((corpusSize + 1) / (df(t) + 1))
//
// to every entry of df.
func ComputeWeights(df []int, corpusSize int) WeightTable {
	weights := make(WeightTable, len(df))
	n := float64(corpusSize) + 1
	for i, count := range df {
		weights[i] = math.Log(n / (float64(count) + 1))
	}
	return weights
}

// Weight returns the weight at pos, or 0 when pos is outside the table.
func (w WeightTable) Weight(pos int) float64 {
	if pos < 0 || pos >= len(w) {
		return 0
	}
	return w[pos]
}
