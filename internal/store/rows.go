package store

import (
	"fmt"
	"time"

	"github.com/chainlens/internal/triangle"
	"github.com/chainlens/pkg/models"
)

// InventoryItem is a row of the inventory table
type InventoryItem struct {
	ID             uint    `gorm:"primaryKey"`
	TenantID       string  `gorm:"size:64;uniqueIndex:idx_inventory_tenant_sku" validate:"required"`
	SKU            string  `gorm:"size:128;uniqueIndex:idx_inventory_tenant_sku" validate:"required"`
	QuantityOnHand float64 `validate:"gte=0"`
	UnitCost       float64 `validate:"gte=0"`
	UpdatedAt      time.Time
}

// TableName overrides the gorm default
func (InventoryItem) TableName() string { return "inventory_items" }

// SalesTransaction is a row of the sales table
type SalesTransaction struct {
	ID              uint      `gorm:"primaryKey"`
	TenantID        string    `gorm:"size:64;index:idx_sales_tenant_date" validate:"required"`
	SKU             string    `gorm:"size:128" validate:"required"`
	QuantitySold    float64   `validate:"gte=0"`
	Revenue         float64   `validate:"gte=0"`
	TransactionDate time.Time `gorm:"index:idx_sales_tenant_date" validate:"required"`
	Fulfilled       bool
}

// TableName overrides the gorm default
func (SalesTransaction) TableName() string { return "sales_transactions" }

// ScoreSnapshot is a persisted triangle score
type ScoreSnapshot struct {
	ID         uint      `gorm:"primaryKey"`
	TenantID   string    `gorm:"size:64;index:idx_scores_tenant_time" validate:"required"`
	Service    float64   `validate:"gte=0,lte=100"`
	Cost       float64   `validate:"gte=0,lte=100"`
	Capital    float64   `validate:"gte=0,lte=100"`
	Overall    float64   `validate:"gte=0,lte=100"`
	ComputedAt time.Time `gorm:"index:idx_scores_tenant_time"`
}

// TableName overrides the gorm default
func (ScoreSnapshot) TableName() string { return "triangle_scores" }

// AlertRuleRow is a persisted alert rule
type AlertRuleRow struct {
	ID              string `gorm:"primaryKey;size:36"`
	TenantID        string `gorm:"size:64;index" validate:"required"`
	Name            string `gorm:"size:255" validate:"required"`
	Metric          string `gorm:"size:64" validate:"required"`
	Operator        string `gorm:"size:8" validate:"oneof=lt lte gt gte eq"`
	Threshold       float64
	Severity        string `gorm:"size:16" validate:"oneof=critical warning info"`
	CooldownSeconds int64  `validate:"gte=0"`
	Enabled         bool
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName overrides the gorm default
func (AlertRuleRow) TableName() string { return "alert_rules" }

// AlertRow is a persisted triggered alert
type AlertRow struct {
	ID             string `gorm:"primaryKey;size:36"`
	TenantID       string `gorm:"size:64;index:idx_alerts_tenant_time"`
	RuleID         string `gorm:"size:36;index"`
	Metric         string `gorm:"size:64"`
	Value          float64
	Threshold      float64
	Severity       string    `gorm:"size:16"`
	Message        string    `gorm:"size:1024"`
	TriggeredAt    time.Time `gorm:"index:idx_alerts_tenant_time"`
	Acknowledged   bool
	AcknowledgedAt *time.Time
}

// TableName overrides the gorm default
func (AlertRow) TableName() string { return "alerts" }

// AgentRunRow is the status row of one agent execution
type AgentRunRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	TenantID   string `gorm:"size:64;index:idx_agent_runs_tenant_task"`
	Task       string `gorm:"size:64;index:idx_agent_runs_tenant_task"`
	Status     string `gorm:"size:16"`
	Output     string `gorm:"type:text"`
	Error      string `gorm:"size:1024"`
	StartedAt  time.Time
	FinishedAt *time.Time
}

// TableName overrides the gorm default
func (AgentRunRow) TableName() string { return "agent_runs" }

// check validates a row read from the datastore
func (s *Store) check(row interface{}) error {
	if err := s.validate.Struct(row); err != nil {
		return fmt.Errorf("%w: %v", triangle.ErrMalformedInput, err)
	}
	return nil
}

func (r InventoryItem) toModel() models.InventoryRecord {
	return models.InventoryRecord{
		SKU:            r.SKU,
		QuantityOnHand: r.QuantityOnHand,
		UnitCost:       r.UnitCost,
	}
}

func (r SalesTransaction) toModel() models.SalesRecord {
	return models.SalesRecord{
		SKU:             r.SKU,
		QuantitySold:    r.QuantitySold,
		Revenue:         r.Revenue,
		TransactionDate: r.TransactionDate.UTC(),
		Fulfilled:       r.Fulfilled,
	}
}

func (r ScoreSnapshot) toModel() models.TriangleScore {
	return models.TriangleScore{
		TenantID:   r.TenantID,
		Service:    r.Service,
		Cost:       r.Cost,
		Capital:    r.Capital,
		Overall:    r.Overall,
		ComputedAt: r.ComputedAt.UTC(),
	}
}

func scoreRow(score models.TriangleScore) ScoreSnapshot {
	return ScoreSnapshot{
		TenantID:   score.TenantID,
		Service:    score.Service,
		Cost:       score.Cost,
		Capital:    score.Capital,
		Overall:    score.Overall,
		ComputedAt: score.ComputedAt,
	}
}

func (r AlertRuleRow) toModel() models.AlertRule {
	return models.AlertRule{
		ID:              r.ID,
		TenantID:        r.TenantID,
		Name:            r.Name,
		Metric:          r.Metric,
		Operator:        models.AlertOperator(r.Operator),
		Threshold:       r.Threshold,
		Severity:        models.AlertSeverity(r.Severity),
		Cooldown:        time.Duration(r.CooldownSeconds) * time.Second,
		Enabled:         r.Enabled,
		LastTriggeredAt: r.LastTriggeredAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func ruleRow(rule models.AlertRule) AlertRuleRow {
	return AlertRuleRow{
		ID:              rule.ID,
		TenantID:        rule.TenantID,
		Name:            rule.Name,
		Metric:          rule.Metric,
		Operator:        string(rule.Operator),
		Threshold:       rule.Threshold,
		Severity:        string(rule.Severity),
		CooldownSeconds: int64(rule.Cooldown / time.Second),
		Enabled:         rule.Enabled,
		LastTriggeredAt: rule.LastTriggeredAt,
		CreatedAt:       rule.CreatedAt,
		UpdatedAt:       rule.UpdatedAt,
	}
}

func (r AlertRow) toModel() models.Alert {
	return models.Alert{
		ID:             r.ID,
		TenantID:       r.TenantID,
		RuleID:         r.RuleID,
		Metric:         r.Metric,
		Value:          r.Value,
		Threshold:      r.Threshold,
		Severity:       models.AlertSeverity(r.Severity),
		Message:        r.Message,
		TriggeredAt:    r.TriggeredAt,
		Acknowledged:   r.Acknowledged,
		AcknowledgedAt: r.AcknowledgedAt,
	}
}

func alertRow(a models.Alert) AlertRow {
	return AlertRow{
		ID:             a.ID,
		TenantID:       a.TenantID,
		RuleID:         a.RuleID,
		Metric:         a.Metric,
		Value:          a.Value,
		Threshold:      a.Threshold,
		Severity:       string(a.Severity),
		Message:        a.Message,
		TriggeredAt:    a.TriggeredAt,
		Acknowledged:   a.Acknowledged,
		AcknowledgedAt: a.AcknowledgedAt,
	}
}

func (r AgentRunRow) toModel() models.AgentRun {
	return models.AgentRun{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Task:       r.Task,
		Status:     models.AgentRunStatus(r.Status),
		Output:     r.Output,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func agentRunRow(run models.AgentRun) AgentRunRow {
	return AgentRunRow{
		ID:         run.ID,
		TenantID:   run.TenantID,
		Task:       run.Task,
		Status:     string(run.Status),
		Output:     run.Output,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}
