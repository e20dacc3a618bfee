// Package alert evaluates tenant-defined threshold rules over triangle
// analyses and records every rule that fires.
package alert

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/chainlens/pkg/models"
)

var (
	// ErrUnknownMetric is returned for a rule over a metric that does not exist
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrInvalidOperator is returned for an unsupported comparison
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidRule is returned when a rule fails validation
	ErrInvalidRule = errors.New("invalid alert rule")
)

const equalTolerance = 1e-6

// MaxRuleNameLength matches the width of the alert_rules.name column
const MaxRuleNameLength = 255

type metricFunc func(a *models.TriangleAnalysis) float64

var metrics = map[string]metricFunc{
	"overall": func(a *models.TriangleAnalysis) float64 { return a.Scores.Overall },
	"service": func(a *models.TriangleAnalysis) float64 { return a.Scores.Service },
	"cost":    func(a *models.TriangleAnalysis) float64 { return a.Scores.Cost },
	"capital": func(a *models.TriangleAnalysis) float64 { return a.Scores.Capital },

	"service.fill_rate":             func(a *models.TriangleAnalysis) float64 { return a.Metrics.Service.FillRate },
	"service.stockout_risk":         func(a *models.TriangleAnalysis) float64 { return a.Metrics.Service.StockoutRisk },
	"service.on_time_delivery":      func(a *models.TriangleAnalysis) float64 { return a.Metrics.Service.OnTimeDelivery },
	"service.customer_satisfaction": func(a *models.TriangleAnalysis) float64 { return a.Metrics.Service.CustomerSatisfaction },

	"cost.gross_margin":      func(a *models.TriangleAnalysis) float64 { return a.Metrics.Cost.GrossMargin },
	"cost.margin_trend":      func(a *models.TriangleAnalysis) float64 { return a.Metrics.Cost.MarginTrend },
	"cost.cost_optimization": func(a *models.TriangleAnalysis) float64 { return a.Metrics.Cost.CostOptimization },
	"cost.price_variance":    func(a *models.TriangleAnalysis) float64 { return a.Metrics.Cost.PriceVariance },

	"capital.inventory_turnover":    func(a *models.TriangleAnalysis) float64 { return a.Metrics.Capital.InventoryTurnover },
	"capital.working_capital_ratio": func(a *models.TriangleAnalysis) float64 { return a.Metrics.Capital.WorkingCapitalRatio },
	"capital.cash_conversion_cycle": func(a *models.TriangleAnalysis) float64 { return a.Metrics.Capital.CashConversionCycle },
	"capital.roce":                  func(a *models.TriangleAnalysis) float64 { return a.Metrics.Capital.ROCE },
}

// Metrics lists every metric a rule can watch
func Metrics() []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MetricValue reads a named metric from an analysis
func MetricValue(analysis *models.TriangleAnalysis, metric string) (float64, error) {
	fn, ok := metrics[metric]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	return fn(analysis), nil
}

// Compare applies op between value and threshold
func Compare(op models.AlertOperator, value, threshold float64) (bool, error) {
	switch op {
	case models.OperatorLessThan:
		return value < threshold, nil
	case models.OperatorLessOrEqual:
		return value <= threshold, nil
	case models.OperatorGreaterThan:
		return value > threshold, nil
	case models.OperatorGreaterOrEqual:
		return value >= threshold, nil
	case models.OperatorEqual:
		return math.Abs(value-threshold) < equalTolerance, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
}

// ValidateRule checks the user-editable fields of a rule
func ValidateRule(rule models.AlertRule) error {
	var problems []string

	if strings.TrimSpace(rule.Name) == "" {
		problems = append(problems, "name is required")
	}
	if utf8.RuneCountInString(rule.Name) > MaxRuleNameLength {
		problems = append(problems, fmt.Sprintf("name exceeds %d characters", MaxRuleNameLength))
	}
	if _, ok := metrics[rule.Metric]; !ok {
		problems = append(problems, fmt.Sprintf("unknown metric %q", rule.Metric))
	}
	if _, err := Compare(rule.Operator, 0, 0); err != nil {
		problems = append(problems, fmt.Sprintf("unsupported operator %q", rule.Operator))
	}
	switch rule.Severity {
	case models.AlertSeverityCritical, models.AlertSeverityWarning, models.AlertSeverityInfo:
	default:
		problems = append(problems, fmt.Sprintf("unsupported severity %q", rule.Severity))
	}
	if rule.Cooldown < 0 {
		problems = append(problems, "cooldown cannot be negative")
	}
	if math.IsNaN(rule.Threshold) || math.IsInf(rule.Threshold, 0) {
		problems = append(problems, "threshold must be finite")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(problems, "; "))
	}
	return nil
}
