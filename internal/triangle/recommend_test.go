package triangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlens/pkg/models"
)

func weakMetrics() models.TriangleMetrics {
	return models.TriangleMetrics{
		Service: models.ServiceMetrics{FillRate: 70, StockoutRisk: 40, OnTimeDelivery: 85, CustomerSatisfaction: 76},
		Cost:    models.CostMetrics{GrossMargin: 25, MarginTrend: 30, CostOptimization: 45, PriceVariance: 60},
		Capital: models.CapitalMetrics{InventoryTurnover: 3, WorkingCapitalRatio: 1.1, CashConversionCycle: 120, ROCE: 40},
	}
}

func TestRecommend_SkipsStrongDimensions(t *testing.T) {
	score := models.TriangleScore{Service: 80, Cost: 95, Capital: 88}

	recs := Recommend(score, weakMetrics())

	assert.Empty(t, recs)
}

func TestRecommend_OnlyWeakDimension(t *testing.T) {
	score := models.TriangleScore{Service: 55, Cost: 90, Capital: 90}

	recs := Recommend(score, weakMetrics())

	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, models.DimensionService, rec.Dimension)
	}

	titles := make([]string, len(recs))
	for i, rec := range recs {
		titles[i] = rec.Title
	}
	assert.Contains(t, titles, "Improve Fill Rate")
	assert.Contains(t, titles, "Reduce Stockout Risk")
	assert.Contains(t, titles, "Improve On-Time Delivery")
}

func TestRecommend_DescriptionInterpolatesObservedValue(t *testing.T) {
	score := models.TriangleScore{Service: 90, Cost: 40, Capital: 90}

	recs := Recommend(score, weakMetrics())

	var margin *models.Recommendation
	for i := range recs {
		if recs[i].Title == "Improve Gross Margins" {
			margin = &recs[i]
		}
	}
	require.NotNil(t, margin)
	assert.Contains(t, margin.Description, "25.0%")
	assert.Equal(t, models.EffortHigh, margin.EffortLevel)
	// (40 - 25) / 40
	assert.InDelta(t, 37.5, margin.ImpactScore, 0.05)
}

func TestRecommend_SortedByCompositePriority(t *testing.T) {
	score := models.TriangleScore{Service: 10, Cost: 10, Capital: 10}

	recs := Recommend(score, weakMetrics())
	require.Len(t, recs, len(checks))

	priorities := make(map[string]float64, len(checks))
	for _, c := range checks {
		priorities[c.title] = c.priority
	}

	for i, rec := range recs {
		assert.Equal(t, i+1, rec.PriorityRank)
		if i == 0 {
			continue
		}
		prev := compositePriority(priorities[recs[i-1].Title], recs[i-1].ImpactScore)
		cur := compositePriority(priorities[rec.Title], rec.ImpactScore)
		assert.GreaterOrEqual(t, prev+0.05, cur, "%s ranked above %s", recs[i-1].Title, rec.Title)
	}
}

func TestRecommend_HealthyMetricsProduceNothing(t *testing.T) {
	score := models.TriangleScore{Service: 10, Cost: 10, Capital: 10}
	metrics := models.TriangleMetrics{
		Service: models.ServiceMetrics{FillRate: 99, StockoutRisk: 2, OnTimeDelivery: 97},
		Cost:    models.CostMetrics{GrossMargin: 55, MarginTrend: 60, CostOptimization: 5, PriceVariance: 10},
		Capital: models.CapitalMetrics{InventoryTurnover: 12, WorkingCapitalRatio: 2, CashConversionCycle: 20},
	}

	assert.Empty(t, Recommend(score, metrics))
}

func TestCheckTriggered_ImpactCapped(t *testing.T) {
	c := check{target: 10, above: true}

	ok, impact := c.triggered(400)
	assert.True(t, ok)
	assert.Equal(t, 100.0, impact)

	ok, _ = c.triggered(10)
	assert.False(t, ok)
}
