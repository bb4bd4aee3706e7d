package storage

import (
	"sync"
)

// Store is the persistence collaborator of the provider core. The core
// owns the key names and the serialization format; implementations own
// the medium. An absent key reads as the empty string, not an error.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// MemoryStore keeps values in a map. Used in tests and whenever the
// embedder does not need persistence across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
