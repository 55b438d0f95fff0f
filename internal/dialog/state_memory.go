package dialog

import (
	"context"
	"sync"
)

// MemoryStateStore is a StateStore backed by an in-process map. It is the
// default when Redis is not configured.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]State)}
}

var _ StateStore = (*MemoryStateStore)(nil)

// Get returns the identity's state, or the idle state when absent.
func (s *MemoryStateStore) Get(_ context.Context, identity string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[identity], nil
}

// Set stores the identity's state.
func (s *MemoryStateStore) Set(_ context.Context, identity string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[identity] = state
	return nil
}

// Clear resets the identity to idle.
func (s *MemoryStateStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, identity)
	return nil
}
