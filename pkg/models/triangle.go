package models

import "time"

// Dimension identifies one corner of the supply chain triangle
type Dimension string

const (
	DimensionService Dimension = "service"
	DimensionCost    Dimension = "cost"
	DimensionCapital Dimension = "capital"
)

// EffortLevel represents the expected effort to act on a recommendation
type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"
)

// DimensionScore holds the three per-dimension scores, each in [0,100]
type DimensionScore struct {
	ServiceScore float64 `json:"service_score"`
	CostScore    float64 `json:"cost_score"`
	CapitalScore float64 `json:"capital_score"`
}

// TriangleScore is a scored snapshot for a tenant
type TriangleScore struct {
	TenantID   string    `json:"tenant_id,omitempty"`
	Service    float64   `json:"service"`
	Cost       float64   `json:"cost"`
	Capital    float64   `json:"capital"`
	Overall    float64   `json:"overall"`
	ComputedAt time.Time `json:"computed_at"`
}

// ServiceMetrics are the sub-metrics behind the service score
type ServiceMetrics struct {
	FillRate             float64 `json:"fill_rate"`
	StockoutRisk         float64 `json:"stockout_risk"`
	OnTimeDelivery       float64 `json:"on_time_delivery"`
	CustomerSatisfaction float64 `json:"customer_satisfaction"`
}

// CostMetrics are the sub-metrics behind the cost score
type CostMetrics struct {
	GrossMargin      float64 `json:"gross_margin"`
	MarginTrend      float64 `json:"margin_trend"`
	CostOptimization float64 `json:"cost_optimization"`
	PriceVariance    float64 `json:"price_variance"`
}

// CapitalMetrics are the sub-metrics behind the capital score
type CapitalMetrics struct {
	InventoryTurnover   float64 `json:"inventory_turnover"`
	WorkingCapitalRatio float64 `json:"working_capital_ratio"`
	CashConversionCycle float64 `json:"cash_conversion_cycle"`
	ROCE                float64 `json:"roce"`
}

// TriangleMetrics groups the three sub-metric bundles
type TriangleMetrics struct {
	Service ServiceMetrics `json:"service"`
	Cost    CostMetrics    `json:"cost"`
	Capital CapitalMetrics `json:"capital"`
}

// Recommendation is a ranked improvement suggestion
type Recommendation struct {
	Dimension    Dimension   `json:"dimension"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	ImpactScore  float64     `json:"impact_score"`
	EffortLevel  EffortLevel `json:"effort_level"`
	PriorityRank int         `json:"priority_rank"`
}

// TriangleAnalysis is the full result returned to API callers
type TriangleAnalysis struct {
	Scores          TriangleScore    `json:"scores"`
	Metrics         TriangleMetrics  `json:"metrics"`
	Recommendations []Recommendation `json:"recommendations"`
	HistoricalTrend []TriangleScore  `json:"historical_trend"`
}
