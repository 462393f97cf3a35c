// Package corpus loads the raw document corpus and resolves ranked document
// identifiers back to their display records.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tidwall/jsonc"
)

// Record is one corpus document as stored: a stable identifier, the text
// that gets indexed, and display metadata returned with search results.
type Record struct {
	ID       string            `json:"index"`
	Text     string            `json:"summary"`
	ImageURL string            `json:"image_url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store returns a full snapshot of the corpus in a stable order.
type Store interface {
	LoadAll(ctx context.Context) ([]Record, error)
}

// MemoryStore serves records held in memory. Replace swaps the contents,
// which lets tests and local runs simulate corpus updates.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore(records []Record) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(records)
	return s
}

// LoadFile reads a JSON array of records. Comments and trailing commas are
// allowed.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file %s: %w", path, err)
	}
	var records []Record
	if err := json.Unmarshal(jsonc.ToJSON(data), &records); err != nil {
		return nil, fmt.Errorf("parsing corpus file %s: %w", path, err)
	}
	return NewMemoryStore(records), nil
}

func (s *MemoryStore) LoadAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryStore) Replace(records []Record) {
	cp := make([]Record, len(records))
	copy(cp, records)
	s.mu.Lock()
	s.records = cp
	s.mu.Unlock()
}
