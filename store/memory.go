package store

import (
	"context"
	"sync"

	cr "github.com/gofhir/cqlretrieve"
)

// Memory is an in-memory store. Resources are returned in insertion order.
// It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	byType map[string][]*cr.Resource
	count  int
}

// NewMemory creates a store holding resources.
func NewMemory(resources ...*cr.Resource) *Memory {
	m := &Memory{byType: make(map[string][]*cr.Resource)}
	m.Add(resources...)
	return m
}

// Add appends resources. Nil entries are ignored.
func (m *Memory) Add(resources ...*cr.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range resources {
		if r == nil {
			continue
		}
		m.byType[r.Type()] = append(m.byType[r.Type()], r)
		m.count++
	}
}

// Put stores r, replacing in place any resource with the same type and id.
// Resources without an id are appended.
func (m *Memory) Put(ctx context.Context, r *cr.Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.byType[r.Type()]
	if r.ID() != "" {
		for i, existing := range stored {
			if existing.ID() == r.ID() {
				stored[i] = r
				return nil
			}
		}
	}
	m.byType[r.Type()] = append(stored, r)
	m.count++
	return nil
}

// AllOfType returns a copy of the resources of dataType.
func (m *Memory) AllOfType(ctx context.Context, dataType string) ([]*cr.Resource, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.byType[dataType]
	out := make([]*cr.Resource, len(stored))
	copy(out, stored)
	return out, nil
}

// Len returns the number of stored resources.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Verify interface compliance
var _ Writer = (*Memory)(nil)
