package triangle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainlens/pkg/models"
)

// HistoryStore reads and writes persisted score snapshots
type HistoryStore interface {
	ListScoreHistory(ctx context.Context, tenantID string, limit int) ([]models.TriangleScore, error)
	SaveScore(ctx context.Context, score models.TriangleScore) error
}

// AnalysisCache is an optional, time-boxed cache of analyses
type AnalysisCache interface {
	GetAnalysis(ctx context.Context, tenantID string, windowDays int) (*models.TriangleAnalysis, bool)
	SetAnalysis(ctx context.Context, tenantID string, windowDays int, analysis *models.TriangleAnalysis)
}

// ScorePublisher announces newly computed scores
type ScorePublisher interface {
	PublishScore(ctx context.Context, score models.TriangleScore) error
}

// EngineConfig represents triangle engine configuration
type EngineConfig struct {
	WindowDays     int             `yaml:"window_days" json:"window_days"`
	ZeroPolicy     ZeroScorePolicy `yaml:"zero_policy" json:"zero_policy"`
	Assumptions    Assumptions     `yaml:"assumptions" json:"assumptions"`
	HistoryLimit   int             `yaml:"history_limit" json:"history_limit"`
	CacheEnabled   bool            `yaml:"cache_enabled" json:"cache_enabled"`
	PersistScores  bool            `yaml:"persist_scores" json:"persist_scores"`
	PersistTimeout time.Duration   `yaml:"persist_timeout" json:"persist_timeout"`
	ErrorBuffer    int             `yaml:"error_buffer" json:"error_buffer"`
}

// DefaultEngineConfig returns default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WindowDays:     DefaultWindowDays,
		ZeroPolicy:     ZeroPolicyZero,
		Assumptions:    DefaultAssumptions(),
		HistoryLimit:   30,
		CacheEnabled:   true,
		PersistScores:  true,
		PersistTimeout: 10 * time.Second,
		ErrorBuffer:    64,
	}
}

// EngineMetrics represents triangle engine metrics
type EngineMetrics struct {
	AnalysesPerformed int64            `json:"analyses_performed"`
	AnalysesFailed    int64            `json:"analyses_failed"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	PersistFailures   int64            `json:"persist_failures"`
	AverageDuration   time.Duration    `json:"average_duration"`
	LastAnalysis      time.Time        `json:"last_analysis"`
	ScoreDistribution map[string]int64 `json:"score_distribution"`
}

// Engine runs the collect, score, aggregate and recommend chain
type Engine struct {
	config    EngineConfig
	collector *Collector
	history   HistoryStore
	cache     AnalysisCache
	publisher ScorePublisher
	logger    *zap.Logger
	now       func() time.Time

	persistErrs chan error
	wg          sync.WaitGroup

	mu      sync.Mutex
	metrics EngineMetrics
}

// Option customizes an Engine
type Option func(*Engine)

// WithCache enables the analysis cache
func WithCache(cache AnalysisCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithPublisher publishes each persisted score
func WithPublisher(publisher ScorePublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the engine clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.collector.now = now
	}
}

// NewEngine creates a new triangle engine
func NewEngine(config EngineConfig, data DataStore, history HistoryStore, opts ...Option) *Engine {
	if config.WindowDays <= 0 {
		config.WindowDays = DefaultWindowDays
	}
	if !config.ZeroPolicy.Valid() {
		config.ZeroPolicy = ZeroPolicyZero
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = 10 * time.Second
	}
	if config.ErrorBuffer <= 0 {
		config.ErrorBuffer = 64
	}

	e := &Engine{
		config:      config,
		collector:   NewCollector(data),
		history:     history,
		logger:      zap.NewNop(),
		now:         time.Now,
		persistErrs: make(chan error, config.ErrorBuffer),
		metrics: EngineMetrics{
			ScoreDistribution: make(map[string]int64),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze computes the triangle analysis for a tenant. A windowDays of 0
// uses the configured default window.
func (e *Engine) Analyze(ctx context.Context, tenantID string, windowDays int) (*models.TriangleAnalysis, error) {
	start := time.Now()
	if windowDays <= 0 {
		windowDays = e.config.WindowDays
	}

	if e.config.CacheEnabled && e.cache != nil {
		if cached, ok := e.cache.GetAnalysis(ctx, tenantID, windowDays); ok {
			e.recordCache(true)
			return cached, nil
		}
		e.recordCache(false)
	}

	analysis, err := e.analyze(ctx, tenantID, windowDays)
	e.recordAnalysis(time.Since(start), analysis, err)
	if err != nil {
		return nil, err
	}

	if e.config.PersistScores && e.history != nil {
		e.persistAsync(analysis.Scores)
	}

	if e.config.CacheEnabled && e.cache != nil {
		e.cache.SetAnalysis(ctx, tenantID, windowDays, analysis)
	}

	return analysis, nil
}

func (e *Engine) analyze(ctx context.Context, tenantID string, windowDays int) (*models.TriangleAnalysis, error) {
	ds, err := e.collector.Collect(ctx, tenantID, windowDays)
	if err != nil {
		return nil, err
	}

	score, metrics, err := Score(ds, e.config.Assumptions, e.config.ZeroPolicy)
	if err != nil {
		return nil, err
	}
	score.TenantID = tenantID
	score.ComputedAt = e.now().UTC()

	analysis := &models.TriangleAnalysis{
		Scores:          score,
		Metrics:         metrics,
		Recommendations: Recommend(score, metrics),
		HistoricalTrend: []models.TriangleScore{},
	}

	if e.history != nil {
		trend, err := e.history.ListScoreHistory(ctx, tenantID, e.config.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to read score history for tenant %s: %w", tenantID, err)
		}
		if trend != nil {
			analysis.HistoricalTrend = trend
		}
	}

	return analysis, nil
}

// Score runs the three dimension scorers and the aggregator over a dataset
func Score(ds Dataset, a Assumptions, policy ZeroScorePolicy) (models.TriangleScore, models.TriangleMetrics, error) {
	if err := ds.Validate(); err != nil {
		return models.TriangleScore{}, models.TriangleMetrics{}, err
	}

	metrics := models.TriangleMetrics{
		Service: ServiceMetricsFor(ds, a),
		Cost:    CostMetricsFor(ds),
		Capital: CapitalMetricsFor(ds, a),
	}

	dims := ScoreDimensions(metrics)
	score := models.TriangleScore{
		Service: dims.ServiceScore,
		Cost:    dims.CostScore,
		Capital: dims.CapitalScore,
	}

	overall, err := HarmonicMean(dims.ServiceScore, dims.CostScore, dims.CapitalScore, policy)
	if err != nil {
		return models.TriangleScore{}, models.TriangleMetrics{}, err
	}
	score.Overall = overall

	return score, metrics, nil
}

// persistAsync writes the score in the background. Its failures go to the
// log and to PersistErrors, never back to the Analyze caller.
func (e *Engine) persistAsync(score models.TriangleScore) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.config.PersistTimeout)
		defer cancel()

		if err := e.history.SaveScore(ctx, score); err != nil {
			e.reportPersistError(fmt.Errorf("failed to save score for tenant %s: %w", score.TenantID, err))
			return
		}

		if e.publisher != nil {
			if err := e.publisher.PublishScore(ctx, score); err != nil {
				e.logger.Warn("failed to publish score",
					zap.String("tenant_id", score.TenantID), zap.Error(err))
			}
		}
	}()
}

func (e *Engine) reportPersistError(err error) {
	e.logger.Error("score persistence failed", zap.Error(err))

	e.mu.Lock()
	e.metrics.PersistFailures++
	e.mu.Unlock()

	select {
	case e.persistErrs <- err:
	default:
	}
}

// PersistErrors exposes background persistence failures
func (e *Engine) PersistErrors() <-chan error {
	return e.persistErrs
}

// Close waits for in-flight background writes
func (e *Engine) Close() {
	e.wg.Wait()
}

func (e *Engine) recordCache(hit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if hit {
		e.metrics.CacheHits++
	} else {
		e.metrics.CacheMisses++
	}
}

func (e *Engine) recordAnalysis(duration time.Duration, analysis *models.TriangleAnalysis, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.metrics.AnalysesPerformed++
	e.metrics.LastAnalysis = time.Now()

	if err != nil {
		// no data is an expected state for new tenants
		if !errors.Is(err, ErrDataUnavailable) {
			e.metrics.AnalysesFailed++
		}
		return
	}

	if e.metrics.AverageDuration == 0 {
		e.metrics.AverageDuration = duration
	} else {
		e.metrics.AverageDuration = (e.metrics.AverageDuration + duration) / 2
	}

	e.metrics.ScoreDistribution[scoreBand(analysis.Scores.Overall)]++
}

// GetMetrics returns a copy of the engine metrics
func (e *Engine) GetMetrics() EngineMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.metrics
	snapshot.ScoreDistribution = make(map[string]int64, len(e.metrics.ScoreDistribution))
	for k, v := range e.metrics.ScoreDistribution {
		snapshot.ScoreDistribution[k] = v
	}
	return snapshot
}

func scoreBand(overall float64) string {
	switch {
	case overall >= 80:
		return "strong"
	case overall >= 60:
		return "fair"
	case overall >= 40:
		return "weak"
	default:
		return "critical"
	}
}
