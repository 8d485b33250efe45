package state

import (
	"context"
	"sort"
	"sync"

	"github.com/fwmesh/fwmesh/internal/graph"
)

// Memory is a non-durable in-memory store used by tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	records map[graph.Identity]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[graph.Identity]Record)}
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec.Clone()
	return nil
}

// Lookup implements Store.
func (m *Memory) Lookup(_ context.Context, id graph.Identity) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// Remove implements Store.
func (m *Memory) Remove(_ context.Context, id graph.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
