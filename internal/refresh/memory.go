package refresh

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	gens    map[string]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		gens:    make(map[string]uint64),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Generation(_ context.Context, key string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gens[key]; !ok {
		s.gens[key] = 0
	}
	return s.gens[key], nil
}

func (s *MemoryStore) PutIfGeneration(_ context.Context, key string, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[key] != e.Generation {
		return false, nil
	}
	s.entries[key] = e
	return true, nil
}

func (s *MemoryStore) Invalidate(_ context.Context, key string, exact bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bump(key, exact), nil
}

func (s *MemoryStore) Drop(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump(key, false)
	return nil
}

func (s *MemoryStore) bump(key string, exact bool) []string {
	if _, ok := s.gens[key]; !ok {
		s.gens[key] = 0
	}
	var touched []string
	for k := range s.gens {
		if !MatchKey(k, key, exact) {
			continue
		}
		s.gens[k]++
		delete(s.entries, k)
		touched = append(touched, k)
	}
	return touched
}
