package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summarysearch/summarysearch/internal/normalizer"
	"github.com/summarysearch/summarysearch/internal/ranker"
	"github.com/summarysearch/summarysearch/internal/vectorizer"
	apperrors "github.com/summarysearch/summarysearch/pkg/errors"
)

func corpusOf(pairs ...string) []Document {
	docs := make([]Document, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		docs = append(docs, Document{ID: pairs[i], Tokens: strings.Fields(pairs[i+1])})
	}
	return docs
}

func fitted(t *testing.T, corpus []Document) *Engine {
	t.Helper()
	e := New(Options{FitConcurrency: 4})
	require.NoError(t, e.Fit(context.Background(), corpus))
	return e
}

func TestCatSatScenario(t *testing.T) {
	e := fitted(t, corpusOf("a", "cat sat mat", "b", "dog sat log"))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cat", "sat", "mat", "dog", "log"}, snap.Vocabulary.Terms())

	catPos, _ := snap.Vocabulary.Position("cat")
	satPos, _ := snap.Vocabulary.Position("sat")
	assert.InDelta(t, math.Log(3.0/2.0), snap.Weights[catPos], 1e-12)
	assert.Equal(t, 0.0, snap.Weights[satPos])

	qvec, err := e.VectorizeQuery([]string{"cat"})
	require.NoError(t, err)
	for i, x := range qvec {
		if i == catPos {
			assert.NotZero(t, x)
		} else {
			assert.Zero(t, x)
		}
	}

	results, err := e.Search([]string{"cat"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "b scores 0 and is filtered out")
	assert.Equal(t, "a", results[0].DocID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestUnfittedAccess(t *testing.T) {
	e := New(Options{})
	assert.Equal(t, StateUnfitted, e.State())

	_, err := e.VectorizeQuery([]string{"cat"})
	assert.ErrorIs(t, err, apperrors.ErrNotFitted)

	_, err = e.Search([]string{"cat"}, 10)
	assert.ErrorIs(t, err, apperrors.ErrNotFitted)

	_, err = e.Snapshot()
	assert.ErrorIs(t, err, apperrors.ErrNotFitted)
}

func TestEmptyQuery(t *testing.T) {
	e := fitted(t, corpusOf("a", "cat sat mat", "b", "dog sat log"))

	vec, err := e.VectorizeQuery([]string{})
	require.NoError(t, err)
	assert.Len(t, vec, 5)
	assert.True(t, vec.IsZero())

	results, err := e.Search(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEmptyCorpus(t *testing.T) {
	e := fitted(t, nil)
	assert.Equal(t, StateFitted, e.State())

	snap, err := e.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Vocabulary.Len())
	assert.Equal(t, 0, snap.DocumentCount())

	vec, err := e.VectorizeQuery([]string{"cat"})
	require.NoError(t, err)
	assert.Len(t, vec, 0)

	results, err := e.Search([]string{"cat"}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	emptyDocs := fitted(t, corpusOf("a", "", "b", ""))
	results, err = emptyDocs.Search([]string{"cat"}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorLengthInvariant(t *testing.T) {
	e := fitted(t, corpusOf(
		"1", "red green blue",
		"2", "green yellow",
		"3", "blue blue purple orange",
	))
	snap, err := e.Snapshot()
	require.NoError(t, err)

	for i := 0; i < snap.Index.Len(); i++ {
		assert.Len(t, snap.Index.At(i).Vector, snap.Vocabulary.Len())
	}
	for _, q := range [][]string{nil, {"red"}, {"unknown", "words"}, {"green", "green", "blue"}} {
		vec, err := e.VectorizeQuery(q)
		require.NoError(t, err)
		assert.Len(t, vec, snap.Vocabulary.Len())
	}
}

func TestFitIsDeterministic(t *testing.T) {
	corpus := corpusOf(
		"1", "the quick brown fox",
		"2", "the lazy dog sleeps",
		"3", "quick quick dog",
		"4", "brown dog brown fox",
	)
	query := []string{"quick", "brown", "dog"}

	var first vectorizer.Vector
	for i := 0; i < 5; i++ {
		e := fitted(t, corpus)
		vec, err := e.VectorizeQuery(query)
		require.NoError(t, err)
		if first == nil {
			first = vec
			continue
		}
		require.Len(t, vec, len(first))
		for j := range first {
			assert.Equal(t, math.Float64bits(first[j]), math.Float64bits(vec[j]))
		}
	}
}

func TestTiesKeepCorpusOrder(t *testing.T) {
	e := fitted(t, corpusOf(
		"z", "apple pie",
		"y", "banana split",
		"x", "apple pie",
		"w", "cherry tart",
	))
	results, err := e.Search([]string{"apple"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "z", results[0].DocID)
	assert.Equal(t, "x", results[1].DocID)
	assert.Equal(t, results[0].Score, results[1].Score)
}

func TestSelfSimilarityIsExactlyOne(t *testing.T) {
	norm := normalizer.Default()
	texts := []string{
		"A brown dog runs across a grassy field chasing a red ball",
		"Two children build a sandcastle on a sunny beach",
		"A cat sleeps on a windowsill next to a potted plant",
		"Fresh vegetables and fruit piled high at a market stall",
	}
	docs := make([]Document, len(texts))
	for i, text := range texts {
		docs[i] = Document{ID: fmt.Sprintf("doc-%d", i), Tokens: norm.Normalize(text)}
	}
	e := fitted(t, docs)
	snap, err := e.Snapshot()
	require.NoError(t, err)

	for i := 0; i < snap.Index.Len(); i++ {
		entry := snap.Index.At(i)
		score, err := ranker.CosineSimilarity(entry.Vector, entry.Vector)
		require.NoError(t, err)
		assert.Equal(t, 1.0, score, entry.DocID)

		results, err := SearchSnapshot(snap, docs[i].Tokens, 1, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, entry.DocID, results[0].DocID)
		assert.Equal(t, 1.0, results[0].Score, entry.DocID)
	}
}

func TestSearchTopN(t *testing.T) {
	e := fitted(t, corpusOf(
		"1", "go programming language",
		"2", "python programming language",
		"3", "banana fruit split",
	))

	results, err := e.Search([]string{"programming"}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = e.Search([]string{"programming"}, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	results, err = e.Search([]string{"go", "language"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "1", results[0].DocID)

	results, err = e.SearchWithMinScore([]string{"go", "language"}, 10, 0.99)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFitRejectsMalformedCorpus(t *testing.T) {
	e := fitted(t, corpusOf("a", "cat"))
	before, err := e.Snapshot()
	require.NoError(t, err)

	err = e.Fit(context.Background(), corpusOf("a", "dog", "a", "log"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = e.Fit(context.Background(), []Document{{ID: "", Tokens: []string{"x"}}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	after, err := e.Snapshot()
	require.NoError(t, err)
	assert.Same(t, before, after, "a failed fit publishes nothing")
}

func TestFitCancelledPublishesNothing(t *testing.T) {
	e := New(Options{FitConcurrency: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Fit(ctx, corpusOf("a", "cat", "b", "dog"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateUnfitted, e.State())
}

func TestRefitReplacesSnapshot(t *testing.T) {
	e := fitted(t, corpusOf("a", "cat sat mat", "c", "dog log"))
	first, err := e.Snapshot()
	require.NoError(t, err)

	require.NoError(t, e.Fit(context.Background(), corpusOf("b", "dog sat log", "d", "bird")))
	second, err := e.Snapshot()
	require.NoError(t, err)

	assert.Greater(t, second.Version, first.Version)
	require.Equal(t, 2, second.Index.Len())
	assert.Equal(t, "b", second.Index.At(0).DocID)
	assert.Equal(t, "d", second.Index.At(1).DocID)

	// the old snapshot is still usable by readers that loaded it earlier
	results, err := SearchSnapshot(first, []string{"cat"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].DocID)
}

func TestConcurrentSearchDuringRefit(t *testing.T) {
	corpusA := make([]Document, 0, 50)
	corpusB := make([]Document, 0, 50)
	for i := 0; i < 50; i++ {
		corpusA = append(corpusA, Document{ID: fmt.Sprintf("a-%d", i), Tokens: []string{"shared", fmt.Sprintf("alpha%d", i%5)}})
		corpusB = append(corpusB, Document{ID: fmt.Sprintf("b-%d", i), Tokens: []string{"shared", "beta", fmt.Sprintf("beta%d", i%7)}})
	}
	e := fitted(t, corpusA)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil && i < 200; i++ {
			corpus := corpusA
			if i%2 == 0 {
				corpus = corpusB
			}
			if err := e.Fit(ctx, corpus); err != nil && ctx.Err() == nil {
				t.Errorf("fit: %v", err)
			}
		}
	}()

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				results, err := e.Search([]string{"shared", "alpha1", "beta"}, 100)
				if err != nil {
					t.Errorf("search: %v", err)
					return
				}
				if len(results) == 0 {
					continue
				}
				prefix := results[0].DocID[:2]
				for _, r := range results {
					if !strings.HasPrefix(r.DocID, prefix) {
						t.Errorf("mixed snapshot results: %s and %s", results[0].DocID, r.DocID)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	cancel()
}

func TestSubstringMatchMode(t *testing.T) {
	corpus := corpusOf("a", "cat", "b", "category")
	token := New(Options{MatchMode: vectorizer.MatchToken})
	substring := New(Options{MatchMode: vectorizer.MatchSubstring})
	require.NoError(t, token.Fit(context.Background(), corpus))
	require.NoError(t, substring.Fit(context.Background(), corpus))

	ts, _ := token.Snapshot()
	ss, _ := substring.Snapshot()
	pos, _ := ts.Vocabulary.Position("cat")
	assert.InDelta(t, math.Log(3.0/2.0), ts.Weights[pos], 1e-12)
	assert.Equal(t, 0.0, ss.Weights[pos], "cat counted in both documents")
}
