package alert

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlens/pkg/models"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		op        models.AlertOperator
		value     float64
		threshold float64
		want      bool
	}{
		{models.OperatorLessThan, 59, 60, true},
		{models.OperatorLessThan, 60, 60, false},
		{models.OperatorLessOrEqual, 60, 60, true},
		{models.OperatorGreaterThan, 61, 60, true},
		{models.OperatorGreaterThan, 60, 60, false},
		{models.OperatorGreaterOrEqual, 60, 60, true},
		{models.OperatorEqual, 60.0000001, 60, true},
		{models.OperatorEqual, 60.1, 60, false},
	}

	for _, tt := range tests {
		got, err := Compare(tt.op, tt.value, tt.threshold)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v %s %v", tt.value, tt.op, tt.threshold)
	}

	_, err := Compare("between", 1, 2)
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestMetricValue(t *testing.T) {
	analysis := &models.TriangleAnalysis{
		Scores: models.TriangleScore{Service: 80, Cost: 60, Capital: 70, Overall: 69.04},
		Metrics: models.TriangleMetrics{
			Service: models.ServiceMetrics{FillRate: 97},
			Cost:    models.CostMetrics{PriceVariance: 12},
			Capital: models.CapitalMetrics{CashConversionCycle: 75},
		},
	}

	cases := map[string]float64{
		"overall":                       69.04,
		"cost":                          60,
		"service.fill_rate":             97,
		"cost.price_variance":           12,
		"capital.cash_conversion_cycle": 75,
	}
	for metric, want := range cases {
		got, err := MetricValue(analysis, metric)
		require.NoError(t, err, metric)
		assert.Equal(t, want, got, metric)
	}

	_, err := MetricValue(analysis, "service.nps")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestMetricsCoversEverySubMetric(t *testing.T) {
	names := Metrics()
	assert.Len(t, names, 16)
	assert.Contains(t, names, "capital.roce")
	assert.True(t, sortedStrings(names))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestValidateRule(t *testing.T) {
	valid := models.AlertRule{
		Name:      "overall floor",
		Metric:    "overall",
		Operator:  models.OperatorLessThan,
		Threshold: 60,
		Severity:  models.AlertSeverityWarning,
	}
	assert.NoError(t, ValidateRule(valid))

	invalid := valid
	invalid.Name = " "
	invalid.Metric = "nps"
	invalid.Operator = "ne"
	invalid.Severity = "urgent"
	invalid.Threshold = math.NaN()

	err := ValidateRule(invalid)
	require.ErrorIs(t, err, ErrInvalidRule)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), `unknown metric "nps"`)
	assert.Contains(t, err.Error(), `unsupported operator "ne"`)
	assert.Contains(t, err.Error(), `unsupported severity "urgent"`)
	assert.Contains(t, err.Error(), "threshold must be finite")
}

func TestValidateRuleNameLength(t *testing.T) {
	rule := models.AlertRule{
		Metric:   "overall",
		Operator: models.OperatorLessThan,
		Severity: models.AlertSeverityInfo,
	}

	rule.Name = strings.Repeat("é", MaxRuleNameLength)
	assert.NoError(t, ValidateRule(rule))

	rule.Name = strings.Repeat("a", MaxRuleNameLength+1)
	err := ValidateRule(rule)
	require.ErrorIs(t, err, ErrInvalidRule)
	assert.Contains(t, err.Error(), "name exceeds 255 characters")
}
