package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainlens/pkg/models"
)

// MaxRunErrorLength bounds the error text stored on a run row
const MaxRunErrorLength = 1024

// Task is a named unit of background work
type Task interface {
	Name() string
	Run(ctx context.Context, tenantID string) (string, error)
}

// RunStore persists agent run rows
type RunStore interface {
	CreateAgentRun(ctx context.Context, run models.AgentRun) error
	UpdateAgentRun(ctx context.Context, run models.AgentRun) error
	ListAgentRuns(ctx context.Context, tenantID string, limit int) ([]models.AgentRun, error)
}

// RunPublisher announces run status changes
type RunPublisher interface {
	PublishAgentRun(ctx context.Context, run models.AgentRun) error
}

// Config represents agent runner configuration
type Config struct {
	RunTimeout   time.Duration `yaml:"run_timeout" json:"run_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	HistoryLimit int           `yaml:"history_limit" json:"history_limit"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature  float32       `yaml:"temperature" json:"temperature"`
}

// DefaultConfig returns default agent configuration
func DefaultConfig() Config {
	return Config{
		RunTimeout:   5 * time.Minute,
		WriteTimeout: 10 * time.Second,
		HistoryLimit: 50,
		MaxTokens:    600,
		Temperature:  0.3,
	}
}

// Manager starts tasks in the background and records their runs
type Manager struct {
	config    Config
	registry  *Registry
	store     RunStore
	publisher RunPublisher
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	tasks map[string]Task

	wg sync.WaitGroup
}

// ManagerOption customizes a Manager
type ManagerOption func(*Manager)

// WithRunPublisher publishes every run status change
func WithRunPublisher(p RunPublisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

// WithManagerLogger sets the manager logger
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithManagerClock overrides the manager clock
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager over an injected registry
func NewManager(config Config, registry *Registry, store RunStore, opts ...ManagerOption) *Manager {
	defaults := DefaultConfig()
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaults.HistoryLimit
	}

	m := &Manager{
		config:   config,
		registry: registry,
		store:    store,
		logger:   zap.NewNop(),
		now:      time.Now,
		tasks:    make(map[string]Task),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a task handler
func (m *Manager) Register(task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.Name()] = task
}

// Tasks lists the registered task names in order
func (m *Manager) Tasks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.tasks))
	for name := range m.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches task for a tenant and returns the running row. The run is
// detached from ctx and bounded by the configured run timeout.
func (m *Manager) Start(ctx context.Context, tenantID, taskName string) (*models.AgentRun, error) {
	m.mu.RLock()
	task, ok := m.tasks[taskName]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskName)
	}

	run := models.AgentRun{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Task:      taskName,
		Status:    models.AgentRunRunning,
		StartedAt: m.now().UTC(),
	}

	key := Key(tenantID, taskName)
	runCtx, cancel := context.WithTimeout(context.Background(), m.config.RunTimeout)
	if err := m.registry.Acquire(key, run.ID, cancel); err != nil {
		cancel()
		return nil, err
	}

	if err := m.store.CreateAgentRun(ctx, run); err != nil {
		m.registry.Release(key, run.ID)
		cancel()
		return nil, fmt.Errorf("failed to record agent run: %w", err)
	}
	m.publish(run)

	m.logger.Info("agent run started",
		zap.String("tenant_id", tenantID), zap.String("task", taskName), zap.String("run_id", run.ID))

	m.wg.Add(1)
	go m.execute(runCtx, cancel, key, task, run)

	started := run
	return &started, nil
}

func (m *Manager) execute(ctx context.Context, cancel context.CancelFunc, key string, task Task, run models.AgentRun) {
	defer m.wg.Done()
	defer cancel()
	defer m.registry.Release(key, run.ID)

	output, err := task.Run(ctx, run.TenantID)

	finished := m.now().UTC()
	run.FinishedAt = &finished
	run.Output = output

	switch {
	case err == nil:
		run.Status = models.AgentRunSucceeded
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		run.Status = models.AgentRunCancelled
		run.Error = "cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		run.Status = models.AgentRunFailed
		run.Error = "run timed out"
	default:
		run.Status = models.AgentRunFailed
		run.Error = truncate(err.Error(), MaxRunErrorLength)
	}

	writeCtx, writeCancel := context.WithTimeout(context.Background(), m.config.WriteTimeout)
	defer writeCancel()
	if err := m.store.UpdateAgentRun(writeCtx, run); err != nil {
		m.logger.Error("failed to record agent run result",
			zap.String("run_id", run.ID), zap.String("task", run.Task), zap.Error(err))
	}
	m.publish(run)

	m.logger.Info("agent run finished",
		zap.String("tenant_id", run.TenantID),
		zap.String("task", run.Task),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Duration("duration", finished.Sub(run.StartedAt)))
}

// truncate cuts s to at most max bytes without splitting a rune
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (m *Manager) publish(run models.AgentRun) {
	if m.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.config.WriteTimeout)
	defer cancel()
	if err := m.publisher.PublishAgentRun(ctx, run); err != nil {
		m.logger.Warn("failed to publish agent run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// Cancel stops the running task of a tenant
func (m *Manager) Cancel(tenantID, taskName string) error {
	return m.registry.Cancel(Key(tenantID, taskName))
}

// ListRuns returns the most recent runs of a tenant
func (m *Manager) ListRuns(ctx context.Context, tenantID string) ([]models.AgentRun, error) {
	return m.store.ListAgentRuns(ctx, tenantID, m.config.HistoryLimit)
}

// Running lists the tasks currently held in the registry
func (m *Manager) Running() []RunningTask {
	return m.registry.Running()
}

// Wait blocks until every started run has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every running task and waits for them until ctx ends
func (m *Manager) Shutdown(ctx context.Context) error {
	m.registry.CancelAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
