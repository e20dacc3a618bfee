// Package agent runs long-lived background tasks for a tenant, at most one
// per (tenant, task) at a time, and records every run.
package agent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning is returned when a task key is already held
	ErrAlreadyRunning = errors.New("agent task already running")

	// ErrNotRunning is returned when cancelling a key nobody holds
	ErrNotRunning = errors.New("agent task not running")

	// ErrUnknownTask is returned for a task name with no registered handler
	ErrUnknownTask = errors.New("unknown agent task")
)

// RunningTask describes a held registry key
type RunningTask struct {
	Key       string    `json:"key"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

type registryEntry struct {
	runID     string
	cancel    context.CancelFunc
	startedAt time.Time
}

// Registry is a keyed mutual-exclusion table of running tasks. Each key maps
// to the cancel handle of the run that holds it.
type Registry struct {
	mu      sync.Mutex
	running map[string]registryEntry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{running: make(map[string]registryEntry)}
}

// Key builds the registry key of a tenant task
func Key(tenantID, task string) string {
	return tenantID + "/" + task
}

// Acquire takes key for runID. It fails with ErrAlreadyRunning while
// another run holds the key.
func (r *Registry) Acquire(key, runID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.running[key]; held {
		return ErrAlreadyRunning
	}
	r.running[key] = registryEntry{runID: runID, cancel: cancel, startedAt: time.Now()}
	return nil
}

// Release frees key if runID still holds it
func (r *Registry) Release(key, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, held := r.running[key]; held && entry.runID == runID {
		delete(r.running, key)
	}
}

// Cancel signals the run holding key to stop. The key stays held until the
// run releases it.
func (r *Registry) Cancel(key string) error {
	r.mu.Lock()
	entry, held := r.running[key]
	r.mu.Unlock()

	if !held {
		return ErrNotRunning
	}
	entry.cancel()
	return nil
}

// CancelAll signals every running task to stop
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.running {
		entry.cancel()
	}
}

// IsRunning reports whether key is held
func (r *Registry) IsRunning(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, held := r.running[key]
	return held
}

// Running lists held keys ordered by key
func (r *Registry) Running() []RunningTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := make([]RunningTask, 0, len(r.running))
	for key, entry := range r.running {
		tasks = append(tasks, RunningTask{Key: key, RunID: entry.runID, StartedAt: entry.startedAt})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Key < tasks[j].Key })
	return tasks
}
