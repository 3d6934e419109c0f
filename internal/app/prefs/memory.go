package prefs

import (
	"context"
	"sync"
)

// MemoryStore is an in-process AccountStore.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string][]byte
	writes int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, accountID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[accountID][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *MemoryStore) Put(_ context.Context, accountID, key string, value []byte) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values[accountID] == nil {
		s.values[accountID] = make(map[string][]byte)
	}
	s.values[accountID][key] = append([]byte(nil), value...)
	s.writes++
	return nil
}

// Writes returns how many Put calls succeeded.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
