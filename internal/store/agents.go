package store

import (
	"context"
	"fmt"

	"github.com/chainlens/pkg/models"
)

// CreateAgentRun inserts the status row of a started run
func (s *Store) CreateAgentRun(ctx context.Context, run models.AgentRun) error {
	row := agentRunRow(run)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create agent run: %w", err)
	}
	return nil
}

// UpdateAgentRun writes the final status, output and timing of a run
func (s *Store) UpdateAgentRun(ctx context.Context, run models.AgentRun) error {
	res := s.db.WithContext(ctx).
		Model(&AgentRunRow{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":      string(run.Status),
			"output":      run.Output,
			"error":       run.Error,
			"finished_at": run.FinishedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update agent run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAgentRuns returns the most recent runs of a tenant
func (s *Store) ListAgentRuns(ctx context.Context, tenantID string, limit int) ([]models.AgentRun, error) {
	var rows []AgentRunRow
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list agent runs: %w", err)
	}

	runs := make([]models.AgentRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toModel())
	}
	return runs, nil
}
