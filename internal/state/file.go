package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileManager implements the Manager interface with one JSON file per run in
// a directory. Locks are files holding their expiry time.
type FileManager struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileManager creates a file-based state manager rooted at baseDir
func NewFileManager(baseDir string) (*FileManager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileManager{baseDir: baseDir}, nil
}

func (m *FileManager) statePath(jobID string) string {
	return filepath.Join(m.baseDir, fmt.Sprintf("%s.state", jobID))
}

func (m *FileManager) lockPath(key string) string {
	return filepath.Join(m.baseDir, fmt.Sprintf("%s.lock", key))
}

// GetState reads the state file for a run
func (m *FileManager) GetState(ctx context.Context, jobID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.readState(jobID)
}

func (m *FileManager) readState(jobID string) (*State, error) {
	data, err := os.ReadFile(m.statePath(jobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// CreateState writes a new state file, failing if one exists
func (m *FileManager) CreateState(ctx context.Context, state *State) error {
	if err := validate(state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.statePath(state.JobID)); err == nil {
		return fmt.Errorf("state already exists for job %s", state.JobID)
	}
	return m.saveState(state)
}

// UpdateState overwrites the state file of an existing run
func (m *FileManager) UpdateState(ctx context.Context, state *State) error {
	if err := validate(state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.statePath(state.JobID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, state.JobID)
		}
		return fmt.Errorf("failed to check state file: %w", err)
	}
	return m.saveState(state)
}

// DeleteState removes the state file for a run
func (m *FileManager) DeleteState(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.statePath(jobID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// ListStates reads every state file in the directory, oldest first
func (m *FileManager) ListStates(ctx context.Context) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []*State
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".state" {
			continue
		}
		state, err := m.readState(strings.TrimSuffix(entry.Name(), ".state"))
		if err != nil {
			// Skip unreadable states
			continue
		}
		states = append(states, state)
	}

	sortStates(states)
	return states, nil
}

// LockState acquires a lock by writing a lock file with its expiry
func (m *FileManager) LockState(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockFile := m.lockPath(key)
	if data, err := os.ReadFile(lockFile); err == nil {
		var expires time.Time
		if err := json.Unmarshal(data, &expires); err != nil {
			return false, fmt.Errorf("failed to unmarshal lock time: %w", err)
		}
		if expires.After(time.Now()) {
			return false, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to read lock file: %w", err)
	}

	data, err := json.Marshal(time.Now().Add(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock time: %w", err)
	}
	if err := os.WriteFile(lockFile, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write lock file: %w", err)
	}
	return true, nil
}

// UnlockState removes the lock file for key
func (m *FileManager) UnlockState(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.lockPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *FileManager) saveState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(m.statePath(state.JobID), data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
