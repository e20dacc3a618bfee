package health

import (
	"context"
	"sync"
	"time"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

type HealthCheck interface {
	Name() string
	Check(ctx context.Context) HealthResult
}

type HealthResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Report is the aggregated outcome of every registered check
type Report struct {
	Status    HealthStatus            `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]HealthResult `json:"checks"`
}

type HealthChecker struct {
	checks []HealthCheck
	mu     sync.RWMutex
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make([]HealthCheck, 0)}
}

func (hc *HealthChecker) Register(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, check)
}

// Check runs every registered check concurrently
func (hc *HealthChecker) Check(ctx context.Context) map[string]HealthResult {
	hc.mu.RLock()
	checks := make([]HealthCheck, len(hc.checks))
	copy(checks, hc.checks)
	hc.mu.RUnlock()

	results := make(map[string]HealthResult)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, c := range checks {
		wg.Add(1)
		go func(ch HealthCheck) {
			defer wg.Done()
			start := time.Now()
			res := ch.Check(ctx)
			res.Duration = time.Since(start)
			mu.Lock()
			results[ch.Name()] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

func (hc *HealthChecker) OverallStatus(results map[string]HealthResult) HealthStatus {
	hasDegraded := false
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Report runs the checks and aggregates them
func (hc *HealthChecker) Report(ctx context.Context) Report {
	results := hc.Check(ctx)
	return Report{
		Status:    hc.OverallStatus(results),
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
}

// PingFunc checks that a dependency is reachable
type PingFunc func(ctx context.Context) error

// PingCheck reports a dependency by pinging it. A failing required
// dependency is unhealthy, a failing optional one only degraded.
type PingCheck struct {
	name     string
	ping     PingFunc
	slow     time.Duration
	required bool
}

// NewPingCheck creates a ping-based check
func NewPingCheck(name string, ping PingFunc, slow time.Duration, required bool) *PingCheck {
	return &PingCheck{name: name, ping: ping, slow: slow, required: required}
}

// DatabaseCheck pings the relational store
func DatabaseCheck(ping PingFunc) *PingCheck {
	return NewPingCheck("database", ping, 100*time.Millisecond, true)
}

// RedisCheck pings the shared cache tier
func RedisCheck(ping PingFunc) *PingCheck {
	return NewPingCheck("redis", ping, 50*time.Millisecond, false)
}

// KafkaCheck dials the event bus
func KafkaCheck(ping PingFunc) *PingCheck {
	return NewPingCheck("kafka", ping, 500*time.Millisecond, false)
}

func (p *PingCheck) Name() string { return p.name }

func (p *PingCheck) Check(ctx context.Context) HealthResult {
	start := time.Now()
	err := p.ping(ctx)
	duration := time.Since(start)

	res := HealthResult{Name: p.name, Duration: duration}
	switch {
	case err != nil && p.required:
		res.Status = StatusUnhealthy
		res.Message = p.name + " connection failed"
		res.Error = err.Error()
	case err != nil:
		res.Status = StatusDegraded
		res.Message = p.name + " unavailable"
		res.Error = err.Error()
	case p.slow > 0 && duration > p.slow:
		res.Status = StatusDegraded
		res.Message = p.name + " responding slowly"
	default:
		res.Status = StatusHealthy
		res.Message = p.name + " connection healthy"
	}
	return res
}
