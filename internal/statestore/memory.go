package statestore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation. Used in tests and when
// the agent runs without a database.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[string][]chan string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]string),
		watchers: make(map[string][]chan string),
	}
}

// Get returns the value for key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Put stores value under key and notifies watchers of that key.
func (s *MemoryStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	watchers := append([]chan string(nil), s.watchers[key]...)
	s.mu.Unlock()
	for _, ch := range watchers {
		// Non-blocking: a slow watcher drops the update rather than stalling
		// the writer, matching the coalescing Watch contract.
		select {
		case ch <- value:
		default:
		}
	}
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Watch registers a watcher for key.
func (s *MemoryStore) Watch(ctx context.Context, key string) (<-chan string, error) {
	ch := make(chan string, 8)
	s.mu.Lock()
	s.watchers[key] = append(s.watchers[key], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		list := s.watchers[key]
		for i, c := range list {
			if c == ch {
				s.watchers[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
