package core

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of the Storage interface.
// State does not survive a restart; it backs guest sessions and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	store  map[string]string
	logger Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store:  make(map[string]string),
		logger: &NoOpLogger{},
	}
}

// SetLogger configures the logger for this memory store
func (m *MemoryStore) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Get retrieves a value from memory
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.store[key]
	result := "hit"
	if !exists {
		result = "miss"
	}
	m.logger.Debug("Storage get", map[string]interface{}{
		"operation": "storage_get",
		"key":       key,
		"result":    result,
	})

	return value, exists, nil
}

// Set stores a value in memory
func (m *MemoryStore) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug("Storage set", map[string]interface{}{
		"operation":  "storage_set",
		"key":        key,
		"value_size": len(value),
	})

	m.store[key] = value
	return nil
}

// Remove deletes a value from memory. Removing a missing key is not an error.
func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.store[key]
	delete(m.store, key)

	m.logger.Debug("Storage remove", map[string]interface{}{
		"operation": "storage_remove",
		"key":       key,
		"existed":   existed,
	})

	return nil
}

// Len returns the number of stored keys
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
