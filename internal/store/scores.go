package store

import (
	"context"
	"fmt"

	"github.com/chainlens/pkg/models"
)

// ListScoreHistory returns up to limit most recent scores of a tenant, oldest first
func (s *Store) ListScoreHistory(ctx context.Context, tenantID string, limit int) ([]models.TriangleScore, error) {
	var rows []ScoreSnapshot
	q := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("computed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list score history: %w", err)
	}

	scores := make([]models.TriangleScore, len(rows))
	for i, row := range rows {
		if err := s.check(row); err != nil {
			return nil, fmt.Errorf("score snapshot %d: %w", row.ID, err)
		}
		scores[len(rows)-1-i] = row.toModel()
	}
	return scores, nil
}

// SaveScore appends a score snapshot
func (s *Store) SaveScore(ctx context.Context, score models.TriangleScore) error {
	row := scoreRow(score)
	if err := s.check(row); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}
