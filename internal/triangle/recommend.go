package triangle

import (
	"fmt"
	"math"
	"sort"

	"github.com/chainlens/pkg/models"
)

// RecommendationThreshold is the dimension score below which a dimension is inspected
const RecommendationThreshold = 80.0

// Priority tiers
const (
	priorityHigh   = 100.0
	priorityMedium = 60.0
	priorityLow    = 30.0
)

// check is a single fixed threshold over one sub-metric
type check struct {
	dimension models.Dimension
	title     string
	effort    models.EffortLevel
	priority  float64
	target    float64
	// above marks checks that trigger when the value exceeds the target
	above    bool
	value    func(models.TriangleMetrics) float64
	describe func(value, target float64) string
}

var checks = []check{
	{
		dimension: models.DimensionService,
		title:     "Improve Fill Rate",
		effort:    models.EffortMedium,
		priority:  priorityHigh,
		target:    95,
		value:     func(m models.TriangleMetrics) float64 { return m.Service.FillRate },
		describe: func(v, t float64) string {
			return fmt.Sprintf("Fill rate is %.1f%%, below the %.0f%% target. Review safety stock on fast movers and prioritize backordered lines.", v, t)
		},
	},
	{
		dimension: models.DimensionService,
		title:     "Reduce Stockout Risk",
		effort:    models.EffortMedium,
		priority:  priorityHigh,
		target:    10,
		above:     true,
		value:     func(m models.TriangleMetrics) float64 { return m.Service.StockoutRisk },
		describe: func(v, t float64) string {
			return fmt.Sprintf("%.1f%% of SKUs have less than a week of stock (target at most %.0f%%). Raise reorder points or expedite open purchase orders.", v, t)
		},
	},
	{
		dimension: models.DimensionService,
		title:     "Improve On-Time Delivery",
		effort:    models.EffortHigh,
		priority:  priorityMedium,
		target:    90,
		value:     func(m models.TriangleMetrics) float64 { return m.Service.OnTimeDelivery },
		describe: func(v, t float64) string {
			return fmt.Sprintf("On-time delivery is %.1f%% against a %.0f%% target. Agree delivery windows with carriers and track late shipments.", v, t)
		},
	},
	{
		dimension: models.DimensionCost,
		title:     "Improve Gross Margins",
		effort:    models.EffortHigh,
		priority:  priorityHigh,
		target:    40,
		value:     func(m models.TriangleMetrics) float64 { return m.Cost.GrossMargin },
		describe: func(v, t float64) string {
			return fmt.Sprintf("Gross margin is %.1f%%, below the %.0f%% target. Revisit pricing on low-margin SKUs and renegotiate supplier terms.", v, t)
		},
	},
	{
		dimension: models.DimensionCost,
		title:     "Reverse Margin Decline",
		effort:    models.EffortMedium,
		priority:  priorityMedium,
		target:    45,
		value:     func(m models.TriangleMetrics) float64 { return m.Cost.MarginTrend },
		describe: func(v, t float64) string {
			return fmt.Sprintf("Margin trend index is %.1f (neutral is 50, target at least %.0f). Margins fell against the previous period; check recent cost increases.", v, t)
		},
	},
	{
		dimension: models.DimensionCost,
		title:     "Consolidate Purchasing",
		effort:    models.EffortMedium,
		priority:  priorityMedium,
		target:    20,
		above:     true,
		value:     func(m models.TriangleMetrics) float64 { return m.Cost.CostOptimization },
		describe: func(v, t float64) string {
			return fmt.Sprintf("Average unit cost sits %.1f%% above the cheapest SKU (target at most %.0f%%). Consolidate purchasing with lower-cost suppliers.", v, t)
		},
	},
	{
		dimension: models.DimensionCost,
		title:     "Standardize Unit Costs",
		effort:    models.EffortLow,
		priority:  priorityLow,
		target:    30,
		above:     true,
		value:     func(m models.TriangleMetrics) float64 { return m.Cost.PriceVariance },
		describe: func(v, t float64) string {
			return fmt.Sprintf("Unit cost varies by %.1f%% across the catalog (target at most %.0f%%). Standardize price lists and review outliers.", v, t)
		},
	},
	{
		dimension: models.DimensionCapital,
		title:     "Increase Inventory Turnover",
		effort:    models.EffortMedium,
		priority:  priorityHigh,
		target:    8,
		value:     func(m models.TriangleMetrics) float64 { return m.Capital.InventoryTurnover },
		describe: func(v, t float64) string {
			return fmt.Sprintf("Inventory turns %.1f times a year, below the target of %.0f. Reduce slow-moving stock and order closer to demand.", v, t)
		},
	},
	{
		dimension: models.DimensionCapital,
		title:     "Shorten Cash Conversion Cycle",
		effort:    models.EffortHigh,
		priority:  priorityMedium,
		target:    60,
		above:     true,
		value:     func(m models.TriangleMetrics) float64 { return m.Capital.CashConversionCycle },
		describe: func(v, t float64) string {
			return fmt.Sprintf("Cash conversion cycle is %.0f days (target at most %.0f). Collect receivables sooner and extend payable terms.", v, t)
		},
	},
	{
		dimension: models.DimensionCapital,
		title:     "Strengthen Working Capital",
		effort:    models.EffortMedium,
		priority:  priorityLow,
		target:    1.5,
		value:     func(m models.TriangleMetrics) float64 { return m.Capital.WorkingCapitalRatio },
		describe: func(v, t float64) string {
			return fmt.Sprintf("Working capital ratio is %.2f, below %.1f. Free up cash tied in stock before taking on new commitments.", v, t)
		},
	},
}

// triggered reports whether the check fires for value and the relative gap as impact
func (c check) triggered(value float64) (bool, float64) {
	var breached bool
	if c.above {
		breached = value > c.target
	} else {
		breached = value < c.target
	}
	if !breached {
		return false, 0
	}
	return true, clampScore(safeDiv(math.Abs(c.target-value), c.target) * 100)
}

// ranked keeps the composite next to the recommendation it ranks
type ranked struct {
	rec       models.Recommendation
	composite float64
}

// compositePriority is the ranking key of a recommendation
func compositePriority(priority, impact float64) float64 {
	return priority*0.6 + impact*0.4
}

// Recommend emits ranked recommendations for every dimension scoring below
// RecommendationThreshold, one per breached sub-metric threshold.
func Recommend(score models.TriangleScore, metrics models.TriangleMetrics) []models.Recommendation {
	dimensionScores := map[models.Dimension]float64{
		models.DimensionService: score.Service,
		models.DimensionCost:    score.Cost,
		models.DimensionCapital: score.Capital,
	}

	candidates := make([]ranked, 0)
	for _, c := range checks {
		if dimensionScores[c.dimension] >= RecommendationThreshold {
			continue
		}
		value := c.value(metrics)
		ok, impact := c.triggered(value)
		if !ok {
			continue
		}
		candidates = append(candidates, ranked{
			rec: models.Recommendation{
				Dimension:   c.dimension,
				Title:       c.title,
				Description: c.describe(value, c.target),
				ImpactScore: math.Round(impact*10) / 10,
				EffortLevel: c.effort,
			},
			composite: compositePriority(c.priority, impact),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].composite > candidates[j].composite
	})

	recommendations := make([]models.Recommendation, len(candidates))
	for i, c := range candidates {
		c.rec.PriorityRank = i + 1
		recommendations[i] = c.rec
	}
	return recommendations
}
