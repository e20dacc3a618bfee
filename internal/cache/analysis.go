package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/chainlens/pkg/models"
)

// DefaultTTL is how long an analysis stays cached
const DefaultTTL = 5 * time.Minute

// Stats represents cache counters
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// AnalysisCache keeps triangle analyses in process memory in front of an
// optional Redis tier. Cache errors are logged and treated as misses.
type AnalysisCache struct {
	local  *gocache.Cache
	remote *RedisCache
	ttl    time.Duration
	logger *zap.Logger

	hits   int64
	misses int64
	errors int64
}

// NewAnalysisCache creates the two-tier cache. remote may be nil.
func NewAnalysisCache(remote *RedisCache, ttl time.Duration, logger *zap.Logger) *AnalysisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisCache{
		local:  gocache.New(ttl, 2*ttl),
		remote: remote,
		ttl:    ttl,
		logger: logger,
	}
}

// AnalysisKey returns the cache key of a tenant analysis
func AnalysisKey(tenantID string, windowDays int) string {
	return fmt.Sprintf("%s%d", tenantPrefix(tenantID), windowDays)
}

func tenantPrefix(tenantID string) string {
	return "triangle:" + tenantID + ":"
}

// isWindow reports whether rest is the window suffix of an analysis key.
// It keeps tenant "acme" from matching keys of tenant "acme:eu".
func isWindow(rest string) bool {
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GetAnalysis returns a cached analysis
func (c *AnalysisCache) GetAnalysis(ctx context.Context, tenantID string, windowDays int) (*models.TriangleAnalysis, bool) {
	key := AnalysisKey(tenantID, windowDays)

	if cached, ok := c.local.Get(key); ok {
		atomic.AddInt64(&c.hits, 1)
		return cached.(*models.TriangleAnalysis), true
	}

	if c.remote != nil {
		var analysis models.TriangleAnalysis
		found, err := c.remote.Get(ctx, key, &analysis)
		if err != nil {
			atomic.AddInt64(&c.errors, 1)
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		} else if found {
			atomic.AddInt64(&c.hits, 1)
			c.local.Set(key, &analysis, gocache.DefaultExpiration)
			return &analysis, true
		}
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// SetAnalysis stores an analysis in both tiers
func (c *AnalysisCache) SetAnalysis(ctx context.Context, tenantID string, windowDays int, analysis *models.TriangleAnalysis) {
	if analysis == nil {
		return
	}
	key := AnalysisKey(tenantID, windowDays)
	c.local.Set(key, analysis, gocache.DefaultExpiration)

	if c.remote != nil {
		if err := c.remote.Set(ctx, key, analysis, c.ttl); err != nil {
			atomic.AddInt64(&c.errors, 1)
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// InvalidateTenant drops every cached analysis of a tenant
func (c *AnalysisCache) InvalidateTenant(ctx context.Context, tenantID string) {
	prefix := tenantPrefix(tenantID)
	for key := range c.local.Items() {
		if strings.HasPrefix(key, prefix) && isWindow(key[len(prefix):]) {
			c.local.Delete(key)
		}
	}

	if c.remote != nil {
		if _, err := c.remote.DeletePrefix(ctx, prefix, isWindow); err != nil {
			atomic.AddInt64(&c.errors, 1)
			c.logger.Warn("cache invalidation failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
}

// Stats returns the cache counters
func (c *AnalysisCache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Errors: atomic.LoadInt64(&c.errors),
	}
}
