// Package index holds the precomputed TF-IDF vector of every corpus document,
// in corpus insertion order.
package index

import (
	"fmt"

	"github.com/summarysearch/summarysearch/internal/vectorizer"
	apperrors "github.com/summarysearch/summarysearch/pkg/errors"
)

// Entry pairs a document identifier with its vector.
type Entry struct {
	DocID  string
	Vector vectorizer.Vector
}

// Index is read-only once built. Every vector has the same dimension.
type Index struct {
	entries   []Entry
	dimension int
}

// Builder accumulates entries for a single Index. It is not safe for
// concurrent use.
type Builder struct {
	entries   []Entry
	positions map[string]int
	dimension int
}

func NewBuilder(dimension, capacity int) *Builder {
	return &Builder{
		entries:   make([]Entry, 0, capacity),
		positions: make(map[string]int, capacity),
		dimension: dimension,
	}
}

// Add appends a document. Empty and duplicate IDs are rejected, as is a
// vector whose length differs from the builder's dimension.
func (b *Builder) Add(docID string, vec vectorizer.Vector) error {
	if docID == "" {
		return fmt.Errorf("adding document at position %d: empty id: %w", len(b.entries), apperrors.ErrInvalidInput)
	}
	if _, exists := b.positions[docID]; exists {
		return fmt.Errorf("adding document %q: duplicate id: %w", docID, apperrors.ErrInvalidInput)
	}
	if len(vec) != b.dimension {
		return fmt.Errorf("adding document %q: vector length %d, index dimension %d: %w",
			docID, len(vec), b.dimension, apperrors.ErrDimensionMismatch)
	}
	b.positions[docID] = len(b.entries)
	b.entries = append(b.entries, Entry{DocID: docID, Vector: vec})
	return nil
}

// Build returns the finished Index. The Builder must not be used afterwards.
func (b *Builder) Build() *Index {
	idx := &Index{
		entries:   b.entries,
		dimension: b.dimension,
	}
	b.entries = nil
	b.positions = nil
	return idx
}

func (idx *Index) Len() int {
	return len(idx.entries)
}

func (idx *Index) Dimension() int {
	return idx.dimension
}

// At returns the i-th entry in insertion order.
func (idx *Index) At(i int) Entry {
	return idx.entries[i]
}
