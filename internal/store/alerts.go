package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chainlens/pkg/models"
)

// AlertFilter narrows ListAlerts
type AlertFilter struct {
	UnacknowledgedOnly bool
	Limit              int
}

// CreateAlertRule inserts a new rule
func (s *Store) CreateAlertRule(ctx context.Context, rule models.AlertRule) error {
	row := ruleRow(rule)
	if err := s.check(row); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

// GetAlertRule returns one rule of a tenant
func (s *Store) GetAlertRule(ctx context.Context, tenantID, ruleID string) (*models.AlertRule, error) {
	var row AlertRuleRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, ruleID).
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.check(row); err != nil {
		return nil, err
	}
	rule := row.toModel()
	return &rule, nil
}

// ListAlertRules returns the rules of a tenant, optionally only enabled ones
func (s *Store) ListAlertRules(ctx context.Context, tenantID string, enabledOnly bool) ([]models.AlertRule, error) {
	var rows []AlertRuleRow
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}

	rules := make([]models.AlertRule, 0, len(rows))
	for _, row := range rows {
		if err := s.check(row); err != nil {
			return nil, fmt.Errorf("alert rule %s: %w", row.ID, err)
		}
		rules = append(rules, row.toModel())
	}
	return rules, nil
}

// UpdateAlertRule replaces the editable fields of a rule
func (s *Store) UpdateAlertRule(ctx context.Context, rule models.AlertRule) error {
	row := ruleRow(rule)
	if err := s.check(row); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Model(&AlertRuleRow{}).
		Where("tenant_id = ? AND id = ?", rule.TenantID, rule.ID).
		Updates(map[string]interface{}{
			"name":             row.Name,
			"metric":           row.Metric,
			"operator":         row.Operator,
			"threshold":        row.Threshold,
			"severity":         row.Severity,
			"cooldown_seconds": row.CooldownSeconds,
			"enabled":          row.Enabled,
			"updated_at":       row.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update alert rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAlertRule removes a rule
func (s *Store) DeleteAlertRule(ctx context.Context, tenantID, ruleID string) error {
	res := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, ruleID).
		Delete(&AlertRuleRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete alert rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRuleTriggered records the last time a rule fired
func (s *Store) MarkRuleTriggered(ctx context.Context, tenantID, ruleID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&AlertRuleRow{}).
		Where("tenant_id = ? AND id = ?", tenantID, ruleID).
		Update("last_triggered_at", at).Error
}

// ListTenantsWithEnabledRules returns every tenant owning at least one enabled rule
func (s *Store) ListTenantsWithEnabledRules(ctx context.Context) ([]string, error) {
	var tenants []string
	if err := s.db.WithContext(ctx).
		Model(&AlertRuleRow{}).
		Where("enabled = ?", true).
		Distinct().
		Order("tenant_id").
		Pluck("tenant_id", &tenants).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// CreateAlert inserts a triggered alert
func (s *Store) CreateAlert(ctx context.Context, alert models.Alert) error {
	row := alertRow(alert)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// ListAlerts returns the alerts of a tenant, newest first
func (s *Store) ListAlerts(ctx context.Context, tenantID string, filter AlertFilter) ([]models.Alert, error) {
	var rows []AlertRow
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.UnacknowledgedOnly {
		q = q.Where("acknowledged = ?", false)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Order("triggered_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	alerts := make([]models.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, row.toModel())
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as acknowledged
func (s *Store) AcknowledgeAlert(ctx context.Context, tenantID, alertID string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&AlertRow{}).
		Where("tenant_id = ? AND id = ?", tenantID, alertID).
		Updates(map[string]interface{}{"acknowledged": true, "acknowledged_at": at})
	if res.Error != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
