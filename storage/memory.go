package storage

import (
	"context"
	"sync"
)

// Memory is the in-memory reference adapter: a mutex-guarded map keyed by
// instance id. It defines the semantics other adapters should match and is
// the backing store for the test harness.
type Memory[S any] struct {
	mu      sync.RWMutex
	records map[string]Record[S]
}

// NewMemory creates an empty in-memory adapter.
func NewMemory[S any]() *Memory[S] {
	return &Memory[S]{records: make(map[string]Record[S])}
}

// Load implements Adapter. Returns (nil, nil) for unknown ids.
func (m *Memory[S]) Load(_ context.Context, instanceID string) (*Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[instanceID]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate the stored record through the pointer.
	out := rec
	return &out, nil
}

// Save implements Adapter.
func (m *Memory[S]) Save(_ context.Context, instanceID string, state S, meta Meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[instanceID] = Record[S]{State: state, Meta: meta}
	return nil
}

// Delete implements Adapter. Deleting an unknown id is a no-op.
func (m *Memory[S]) Delete(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, instanceID)
	return nil
}

// Len returns the number of stored records. The harness exposes this for
// assertions on persistence behavior.
func (m *Memory[S]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// InstanceIDs returns all stored ids, unordered.
func (m *Memory[S]) InstanceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}
