package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("state not found")

// State represents the record of one extraction run
type State struct {
	JobID       string    `json:"job_id"`
	ConfigPath  string    `json:"config_path"`
	QueryFile   string    `json:"query_file,omitempty"`
	Output      string    `json:"output"`
	Format      string    `json:"format"`
	Driver      string    `json:"driver"`
	Status      string    `json:"status"`
	Rows        int64     `json:"rows"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Manager defines the interface for state management
type Manager interface {
	// GetState retrieves the state for a job, ErrNotFound if there is none
	GetState(ctx context.Context, jobID string) (*State, error)

	// CreateState creates a new state for a job
	CreateState(ctx context.Context, state *State) error

	// UpdateState replaces the state for an existing job
	UpdateState(ctx context.Context, state *State) error

	// DeleteState removes the state for a job
	DeleteState(ctx context.Context, jobID string) error

	// ListStates returns every recorded run, oldest first
	ListStates(ctx context.Context) ([]*State, error)

	// LockState acquires a lock on key for ttl. It returns false if another
	// holder has an unexpired lock.
	LockState(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// UnlockState releases a lock on key
	UnlockState(ctx context.Context, key string) error
}

// Manager types accepted by NewManager
const (
	TypeMemory     = "memory"
	TypeFile       = "file"
	TypeKubernetes = "kubernetes"
)

// NewManager creates a state manager of the given type. dir is used by the
// file manager and namespace by the Kubernetes manager.
func NewManager(managerType, dir, namespace string) (Manager, error) {
	switch managerType {
	case "", TypeMemory:
		return NewMemoryManager(), nil
	case TypeFile:
		return NewFileManager(dir)
	case TypeKubernetes:
		return NewKubernetesManager(namespace)
	default:
		return nil, fmt.Errorf("unsupported state type: %s", managerType)
	}
}

// LockKey derives a lock key for an output path that is valid as a file name
// and as a Kubernetes object name.
func LockKey(output string) string {
	sum := sha256.Sum256([]byte(output))
	return "output-" + hex.EncodeToString(sum[:8])
}

func sortStates(states []*State) {
	sort.Slice(states, func(i, j int) bool {
		if states[i].StartedAt.Equal(states[j].StartedAt) {
			return states[i].JobID < states[j].JobID
		}
		return states[i].StartedAt.Before(states[j].StartedAt)
	})
}

func validate(state *State) error {
	if state == nil {
		return fmt.Errorf("state is nil")
	}
	if state.JobID == "" {
		return fmt.Errorf("state has no job ID")
	}
	return nil
}
