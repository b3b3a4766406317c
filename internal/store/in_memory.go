package store

import (
	"context"
	"sync"
)

// InMemory implements Medium using a map. Contents do not survive a restart.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]string)}
}

func (s *InMemory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *InMemory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
	return nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}
