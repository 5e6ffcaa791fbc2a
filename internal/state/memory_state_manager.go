package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryManager implements the Manager interface using in-memory storage.
// This is useful for testing and single-run deployments.
type MemoryManager struct {
	states map[string]*State
	locks  map[string]time.Time
	mu     sync.RWMutex
}

// NewMemoryManager creates a new in-memory state manager
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		states: make(map[string]*State),
		locks:  make(map[string]time.Time),
	}
}

// GetState retrieves a copy of the state for a run
func (m *MemoryManager) GetState(ctx context.Context, jobID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, exists := m.states[jobID]; exists {
		copied := *state
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
}

// CreateState stores a new run state
func (m *MemoryManager) CreateState(ctx context.Context, state *State) error {
	if err := validate(state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[state.JobID]; exists {
		return fmt.Errorf("state already exists for job %s", state.JobID)
	}
	copied := *state
	m.states[state.JobID] = &copied
	return nil
}

// UpdateState replaces the state of an existing run
func (m *MemoryManager) UpdateState(ctx context.Context, state *State) error {
	if err := validate(state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[state.JobID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, state.JobID)
	}
	copied := *state
	m.states[state.JobID] = &copied
	return nil
}

// DeleteState removes the state for a run
func (m *MemoryManager) DeleteState(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[jobID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	delete(m.states, jobID)
	return nil
}

// ListStates returns copies of all run states, oldest first
func (m *MemoryManager) ListStates(ctx context.Context) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]*State, 0, len(m.states))
	for _, state := range m.states {
		copied := *state
		states = append(states, &copied)
	}
	sortStates(states)
	return states, nil
}

// LockState acquires a lock on key unless an unexpired one is held
func (m *MemoryManager) LockState(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lockTime, exists := m.locks[key]; exists && time.Now().Before(lockTime) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

// UnlockState releases the lock on key
func (m *MemoryManager) UnlockState(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, key)
	return nil
}
