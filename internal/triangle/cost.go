package triangle

import (
	"math"

	"github.com/chainlens/pkg/models"
)

// Cost score weights
const (
	weightGrossMargin      = 0.4
	weightMarginTrend      = 0.2
	weightCostOptimization = 0.2
	weightPriceVariance    = 0.2

	neutralMarginTrend = 50.0
	// trend points per margin point of change against the prior window
	marginTrendSlope = 5.0
)

// CostMetricsFor derives margin, margin trend and unit-cost dispersion
func CostMetricsFor(d Dataset) models.CostMetrics {
	costs := d.unitCosts()
	current := computeFinancials(d.Inventory, d.Sales, costs)
	margin := current.grossMargin()

	trend := neutralMarginTrend
	prior := computeFinancials(d.Inventory, d.PriorSales, costs)
	if prior.revenue > 0 {
		trend = clampScore(neutralMarginTrend + marginTrendSlope*(margin-prior.grossMargin()))
	}

	optimization, variance := unitCostDispersion(d.Inventory)

	return models.CostMetrics{
		GrossMargin:      margin,
		MarginTrend:      trend,
		CostOptimization: optimization,
		PriceVariance:    variance,
	}
}

// unitCostDispersion returns the spread of the average over the minimum unit
// cost and the coefficient of variation, both as percentages
func unitCostDispersion(inventory []models.InventoryRecord) (float64, float64) {
	if len(inventory) == 0 {
		return 0, 0
	}

	total := 0.0
	minCost := math.Inf(1)
	for _, item := range inventory {
		total += item.UnitCost
		minCost = math.Min(minCost, item.UnitCost)
	}
	mean := total / float64(len(inventory))

	squares := 0.0
	for _, item := range inventory {
		diff := item.UnitCost - mean
		squares += diff * diff
	}
	stddev := math.Sqrt(squares / float64(len(inventory)))

	return safeDiv(mean-minCost, mean) * 100, safeDiv(stddev, mean) * 100
}

func costComponents(m models.CostMetrics) [4]float64 {
	return [4]float64{
		clampScore(m.GrossMargin*2) * weightGrossMargin,
		clampScore(m.MarginTrend) * weightMarginTrend,
		clampScore(m.CostOptimization) * weightCostOptimization,
		clampScore(100-m.PriceVariance) * weightPriceVariance,
	}
}

// CostScore combines cost sub-metrics into a 0-100 score
func CostScore(m models.CostMetrics) float64 {
	return clampScore(sum(costComponents(m)))
}
