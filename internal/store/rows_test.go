package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlens/internal/triangle"
	"github.com/chainlens/pkg/models"
)

func TestCheckRejectsNegativeInventory(t *testing.T) {
	s := New(nil)

	err := s.check(InventoryItem{TenantID: "acme", SKU: "A-1", QuantityOnHand: -3, UnitCost: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, triangle.ErrMalformedInput)

	assert.NoError(t, s.check(InventoryItem{TenantID: "acme", SKU: "A-1", QuantityOnHand: 0, UnitCost: 2}))
}

func TestCheckRejectsNegativeSales(t *testing.T) {
	s := New(nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		row  SalesTransaction
		ok   bool
	}{
		{"valid", SalesTransaction{TenantID: "acme", SKU: "A", QuantitySold: 1, Revenue: 10, TransactionDate: now}, true},
		{"negative quantity", SalesTransaction{TenantID: "acme", SKU: "A", QuantitySold: -1, Revenue: 10, TransactionDate: now}, false},
		{"negative revenue", SalesTransaction{TenantID: "acme", SKU: "A", QuantitySold: 1, Revenue: -10, TransactionDate: now}, false},
		{"missing sku", SalesTransaction{TenantID: "acme", QuantitySold: 1, Revenue: 10, TransactionDate: now}, false},
		{"missing date", SalesTransaction{TenantID: "acme", SKU: "A", QuantitySold: 1, Revenue: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.check(tt.row)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, triangle.ErrMalformedInput)
			}
		})
	}
}

func TestCheckScoreRange(t *testing.T) {
	s := New(nil)

	valid := scoreRow(models.TriangleScore{TenantID: "acme", Service: 80, Cost: 60, Capital: 70, Overall: 69})
	assert.NoError(t, s.check(valid))

	invalid := valid
	invalid.Capital = 120
	assert.ErrorIs(t, s.check(invalid), triangle.ErrMalformedInput)
}

func TestAlertRuleConversion(t *testing.T) {
	triggered := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rule := models.AlertRule{
		ID:              "rule-1",
		TenantID:        "acme",
		Name:            "overall floor",
		Metric:          "overall",
		Operator:        models.OperatorLessThan,
		Threshold:       60,
		Severity:        models.AlertSeverityCritical,
		Cooldown:        90 * time.Minute,
		Enabled:         true,
		LastTriggeredAt: &triggered,
	}

	row := ruleRow(rule)
	assert.Equal(t, int64(5400), row.CooldownSeconds)
	assert.NoError(t, New(nil).check(row))
	assert.Equal(t, rule, row.toModel())

	row.Operator = "between"
	assert.ErrorIs(t, New(nil).check(row), triangle.ErrMalformedInput)
}

func TestSalesConversionNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	row := SalesTransaction{
		TenantID:        "acme",
		SKU:             "A",
		QuantitySold:    2,
		Revenue:         20,
		TransactionDate: time.Date(2026, 3, 1, 1, 0, 0, 0, loc),
		Fulfilled:       true,
	}

	rec := row.toModel()
	assert.Equal(t, time.UTC, rec.TransactionDate.Location())
	assert.True(t, rec.TransactionDate.Equal(row.TransactionDate))
	assert.True(t, rec.Fulfilled)
}

func TestAgentRunConversion(t *testing.T) {
	finished := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	run := models.AgentRun{
		ID:         "run-1",
		TenantID:   "acme",
		Task:       "triangle_insights",
		Status:     models.AgentRunSucceeded,
		Output:     "plan",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
	}
	assert.Equal(t, run, agentRunRow(run).toModel())
}
