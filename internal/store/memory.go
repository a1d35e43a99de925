// internal/store/memory.go
//
// In-memory implementation of the KV interface.
// This is a lightweight persistence layer used in development and tests,
// or when durability is not required.
//
// Characteristics:
//   - Stores serialized values keyed by string in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sync"
)

// memory is an in-memory map-based KV implementation.
type memory struct {
	mu   sync.RWMutex      // guards data map
	data map[string]string // keyed by logical record key
}

// NewMemory constructs a new in-memory KV.
func NewMemory() KV {
	return &memory{data: make(map[string]string)}
}

// Set adds or updates the value in the map.
func (m *memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Get looks up a value by key.
func (m *memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}
