package alert

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainlens/internal/triangle"
	"github.com/chainlens/pkg/models"
)

// Store is the persistence the alert engine needs
type Store interface {
	ListAlertRules(ctx context.Context, tenantID string, enabledOnly bool) ([]models.AlertRule, error)
	MarkRuleTriggered(ctx context.Context, tenantID, ruleID string, at time.Time) error
	CreateAlert(ctx context.Context, alert models.Alert) error
	ListTenantsWithEnabledRules(ctx context.Context) ([]string, error)
}

// Analyzer produces the analysis a tenant's rules are checked against
type Analyzer interface {
	Analyze(ctx context.Context, tenantID string, windowDays int) (*models.TriangleAnalysis, error)
}

// Publisher announces triggered alerts on the event bus
type Publisher interface {
	PublishAlert(ctx context.Context, alert models.Alert) error
}

// Broadcaster pushes triggered alerts to live subscribers
type Broadcaster interface {
	BroadcastAlert(alert models.Alert)
}

// EngineConfig represents alert engine configuration
type EngineConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval"`
	WindowDays        int           `yaml:"window_days" json:"window_days"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout" json:"evaluation_timeout"`
}

// DefaultEngineConfig returns default alert engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Enabled:           true,
		PollInterval:      5 * time.Minute,
		WindowDays:        triangle.DefaultWindowDays,
		EvaluationTimeout: 30 * time.Second,
	}
}

// Stats represents alert engine counters
type Stats struct {
	Evaluations     int64 `json:"evaluations"`
	AlertsTriggered int64 `json:"alerts_triggered"`
	Failures        int64 `json:"failures"`
}

// Engine evaluates alert rules
type Engine struct {
	config      EngineConfig
	store       Store
	analyzer    Analyzer
	publisher   Publisher
	broadcaster Broadcaster
	logger      *zap.Logger
	now         func() time.Time

	evaluations int64
	triggered   int64
	failures    int64
}

// Option customizes an Engine
type Option func(*Engine)

// WithPublisher publishes every triggered alert
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithBroadcaster pushes every triggered alert to live subscribers
func WithBroadcaster(b Broadcaster) Option {
	return func(e *Engine) { e.broadcaster = b }
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the engine clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new alert engine
func NewEngine(config EngineConfig, store Store, analyzer Analyzer, opts ...Option) *Engine {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultEngineConfig().PollInterval
	}
	if config.EvaluationTimeout <= 0 {
		config.EvaluationTimeout = DefaultEngineConfig().EvaluationTimeout
	}

	e := &Engine{
		config:   config,
		store:    store,
		analyzer: analyzer,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateTenant checks every enabled rule of a tenant against a fresh
// analysis and returns the alerts that fired. Rules are checked in order
// and a rule inside its cooldown is skipped.
func (e *Engine) EvaluateTenant(ctx context.Context, tenantID string) ([]models.Alert, error) {
	atomic.AddInt64(&e.evaluations, 1)

	rules, err := e.store.ListAlertRules(ctx, tenantID, true)
	if err != nil {
		atomic.AddInt64(&e.failures, 1)
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	if len(rules) == 0 {
		return []models.Alert{}, nil
	}

	analysis, err := e.analyzer.Analyze(ctx, tenantID, e.config.WindowDays)
	if err != nil {
		if !errors.Is(err, triangle.ErrDataUnavailable) {
			atomic.AddInt64(&e.failures, 1)
		}
		return nil, err
	}

	now := e.now().UTC()
	fired := make([]models.Alert, 0)
	var errs []error

	for _, rule := range rules {
		if inCooldown(rule, now) {
			continue
		}

		value, err := MetricValue(analysis, rule.Metric)
		if err != nil {
			e.logger.Warn("skipping rule", zap.String("tenant_id", tenantID), zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		matched, err := Compare(rule.Operator, value, rule.Threshold)
		if err != nil {
			e.logger.Warn("skipping rule", zap.String("tenant_id", tenantID), zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		if !matched {
			continue
		}

		alert := newAlert(rule, value, now)
		if err := e.store.CreateAlert(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		if err := e.store.MarkRuleTriggered(ctx, tenantID, rule.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
		}

		fired = append(fired, alert)
		atomic.AddInt64(&e.triggered, 1)
		e.logger.Info("alert triggered",
			zap.String("tenant_id", tenantID),
			zap.String("rule_id", rule.ID),
			zap.String("metric", rule.Metric),
			zap.Float64("value", value))

		if e.publisher != nil {
			if err := e.publisher.PublishAlert(ctx, alert); err != nil {
				e.logger.Warn("failed to publish alert", zap.String("alert_id", alert.ID), zap.Error(err))
			}
		}
		if e.broadcaster != nil {
			e.broadcaster.BroadcastAlert(alert)
		}
	}

	if len(errs) > 0 {
		atomic.AddInt64(&e.failures, 1)
		return fired, errors.Join(errs...)
	}
	return fired, nil
}

// Run evaluates every tenant with enabled rules once immediately and then on
// each poll interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	e.evaluateAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.evaluateAll(ctx)
		}
	}
}

func (e *Engine) evaluateAll(ctx context.Context) {
	tenants, err := e.store.ListTenantsWithEnabledRules(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("failed to list tenants", zap.Error(err))
		}
		return
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return
		}

		evalCtx, cancel := context.WithTimeout(ctx, e.config.EvaluationTimeout)
		_, err := e.EvaluateTenant(evalCtx, tenantID)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, triangle.ErrDataUnavailable):
			e.logger.Debug("no data for tenant", zap.String("tenant_id", tenantID))
		default:
			e.logger.Error("alert evaluation failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
}

// GetStats returns the engine counters
func (e *Engine) GetStats() Stats {
	return Stats{
		Evaluations:     atomic.LoadInt64(&e.evaluations),
		AlertsTriggered: atomic.LoadInt64(&e.triggered),
		Failures:        atomic.LoadInt64(&e.failures),
	}
}

func inCooldown(rule models.AlertRule, now time.Time) bool {
	if rule.LastTriggeredAt == nil || rule.Cooldown <= 0 {
		return false
	}
	return now.Before(rule.LastTriggeredAt.Add(rule.Cooldown))
}

func newAlert(rule models.AlertRule, value float64, now time.Time) models.Alert {
	return models.Alert{
		ID:          uuid.New().String(),
		TenantID:    rule.TenantID,
		RuleID:      rule.ID,
		Metric:      rule.Metric,
		Value:       value,
		Threshold:   rule.Threshold,
		Severity:    rule.Severity,
		Message:     fmt.Sprintf("%s: %s is %.2f (%s %.2f)", rule.Name, rule.Metric, value, rule.Operator, rule.Threshold),
		TriggeredAt: now,
	}
}
