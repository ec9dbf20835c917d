package storage

import (
	"fmt"
	"sync"
)

// MemoryStorage is a map-backed Backend for tests and ephemeral tokens.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{records: make(map[string][]byte)}
}

// Get retrieves the value for the given key.
func (m *MemoryStorage) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put stores the value under the key.
func (m *MemoryStorage) Put(key string, value []byte) error {
	if !ValidKey(key) {
		return fmt.Errorf("memory storage: invalid key %q", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.records[key] = stored
	return nil
}

// Delete removes the record.
func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

// List returns all present keys.
func (m *MemoryStorage) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	return keys, nil
}
