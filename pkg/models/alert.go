package models

import "time"

// AlertOperator is the comparison applied between a metric and a threshold
type AlertOperator string

const (
	OperatorLessThan       AlertOperator = "lt"
	OperatorLessOrEqual    AlertOperator = "lte"
	OperatorGreaterThan    AlertOperator = "gt"
	OperatorGreaterOrEqual AlertOperator = "gte"
	OperatorEqual          AlertOperator = "eq"
)

// AlertSeverity represents alert severity levels
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityInfo     AlertSeverity = "info"
)

// AlertRule is a tenant-defined threshold over a triangle metric
type AlertRule struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenant_id"`
	Name            string        `json:"name"`
	Metric          string        `json:"metric"`
	Operator        AlertOperator `json:"operator"`
	Threshold       float64       `json:"threshold"`
	Severity        AlertSeverity `json:"severity"`
	Cooldown        time.Duration `json:"cooldown"`
	Enabled         bool          `json:"enabled"`
	LastTriggeredAt *time.Time    `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Alert is a triggered rule occurrence
type Alert struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	RuleID         string        `json:"rule_id"`
	Metric         string        `json:"metric"`
	Value          float64       `json:"value"`
	Threshold      float64       `json:"threshold"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	TriggeredAt    time.Time     `json:"triggered_at"`
	Acknowledged   bool          `json:"acknowledged"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
}
