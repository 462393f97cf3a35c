// Package normalizer turns raw text into the normalized token sequences the
// search engine consumes. It lower-cases input, splits on non-alphanumeric
// boundaries, removes stop-words and applies the Snowball English stemmer.
//
// The same Normalizer must be applied to corpus documents and queries.
package normalizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Normalizer maps raw text to an ordered sequence of normalized tokens.
// Implementations must be deterministic and free of side effects.
type Normalizer interface {
	Normalize(text string) []string
}

// Func adapts an ordinary function to the Normalizer interface.
type Func func(text string) []string

func (f Func) Normalize(text string) []string {
	return f(text)
}

// Filter transforms a token stream. Filters may drop or rewrite tokens but
// never reorder them.
type Filter interface {
	Filter(tokens []string) []string
}

// Pipeline splits text into words and runs them through its filters in
// order.
type Pipeline struct {
	filters []Filter
}

func NewPipeline(filters ...Filter) *Pipeline {
	return &Pipeline{filters: filters}
}

// Default returns the pipeline used by the search service: lowercase,
// stop-word removal, Snowball stemming.
func Default() *Pipeline {
	return NewPipeline(
		LowercaseFilter{},
		NewStopWordFilter(EnglishStopWords),
		StemmerFilter{},
		MinLengthFilter{Min: 1},
	)
}

// Normalize always returns a non-nil slice.
func (p *Pipeline) Normalize(text string) []string {
	tokens := Split(text)
	for _, f := range p.filters {
		tokens = f.Filter(tokens)
	}
	if tokens == nil {
		tokens = []string{}
	}
	return tokens
}

// Split breaks text on every rune that is neither a letter nor a digit.
func Split(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type LowercaseFilter struct{}

func (LowercaseFilter) Filter(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.ToLower(t)
	}
	return out
}

type StopWordFilter struct {
	stopWords map[string]struct{}
}

func NewStopWordFilter(words []string) StopWordFilter {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return StopWordFilter{stopWords: set}
}

func (f StopWordFilter) Filter(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, isStop := f.stopWords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// StemmerFilter reduces each token to its Snowball English stem.
type StemmerFilter struct{}

func (StemmerFilter) Filter(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = english.Stem(t, false)
	}
	return out
}

// MinLengthFilter drops tokens shorter than Min bytes.
type MinLengthFilter struct {
	Min int
}

func (f MinLengthFilter) Filter(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) < f.Min {
			continue
		}
		out = append(out, t)
	}
	return out
}
