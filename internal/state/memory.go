package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps blobs in memory. Useful for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	updated map[string]time.Time
	// SaveErr, when set, is returned by every Save.
	SaveErr error
	// LoadErr, when set, is returned by every Load.
	LoadErr error
	saves   int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

// Save stores a copy of blob.
func (m *MemoryStore) Save(_ context.Context, id string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.blobs[id] = append([]byte(nil), blob...)
	m.updated[id] = time.Now()
	return nil
}

// Load returns a copy of the blob, or nil if absent.
func (m *MemoryStore) Load(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	b, ok := m.blobs[id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

// List returns stored sessions, most recently updated first.
func (m *MemoryStore) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]Record, 0, len(m.blobs))
	for id, b := range m.blobs {
		records = append(records, Record{ID: id, UpdatedAt: m.updated[id], Size: int64(len(b))})
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.After(records[j].UpdatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// Delete removes a blob.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
	delete(m.updated, id)
	return nil
}

// Saves returns how many times Save was called, including failed calls.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
