// Package localstore persists the kiosk's small key-value state (pending queue, id counter)
// so it survives restarts.
package localstore

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyKey indicates that a storage key was blank.
var ErrEmptyKey = errors.New("localstore: key is required")

// Store is a persistent string key-value store.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores the value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
}

// MemoryStore keeps values in process memory. It is used by tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}
