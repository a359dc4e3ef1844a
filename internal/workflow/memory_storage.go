package workflow

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage keeps workflow states in process memory. It backs
// single-instance deployments that run without Redis, and tests.
type MemoryStorage struct {
	mu     sync.RWMutex
	states map[int64]UserState
}

// NewMemoryStorage returns an empty in-memory Storage implementation.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{states: make(map[int64]UserState)}
}

// GetState returns the stored user state or ErrStateNotFound when absent.
func (s *MemoryStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, ErrStateNotFound
	}

	copied := state
	return &copied, nil
}

// SetState saves the provided user state.
func (s *MemoryStorage) SetState(ctx context.Context, userID int64, state *UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.UpdatedAt = time.Now().UTC()
	s.states[userID] = *state
	return nil
}

// ClearState removes the state for the specified user.
func (s *MemoryStorage) ClearState(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, userID)
	return nil
}

// ListStates returns a snapshot of every stored state.
func (s *MemoryStorage) ListStates(ctx context.Context) ([]*UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*UserState, 0, len(s.states))
	for _, state := range s.states {
		copied := state
		states = append(states, &copied)
	}

	return states, nil
}
