package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/chainlens/pkg/models"
)

// ListInventory returns the full inventory snapshot of a tenant
func (s *Store) ListInventory(ctx context.Context, tenantID string) ([]models.InventoryRecord, error) {
	var rows []InventoryItem
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("sku").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}

	records := make([]models.InventoryRecord, 0, len(rows))
	for _, row := range rows {
		if err := s.check(row); err != nil {
			return nil, fmt.Errorf("inventory sku %q: %w", row.SKU, err)
		}
		records = append(records, row.toModel())
	}
	return records, nil
}

// ListSales returns the sales of a tenant with a transaction date in [window.Start, window.End)
func (s *Store) ListSales(ctx context.Context, tenantID string, window models.TimeRange) ([]models.SalesRecord, error) {
	var rows []SalesTransaction
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND transaction_date >= ? AND transaction_date < ?", tenantID, window.Start, window.End).
		Order("transaction_date").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}

	records := make([]models.SalesRecord, 0, len(rows))
	for _, row := range rows {
		if err := s.check(row); err != nil {
			return nil, fmt.Errorf("sales transaction %d: %w", row.ID, err)
		}
		records = append(records, row.toModel())
	}
	return records, nil
}

// UpsertInventory writes inventory rows, replacing quantities and costs of existing SKUs
func (s *Store) UpsertInventory(ctx context.Context, tenantID string, records []models.InventoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]InventoryItem, 0, len(records))
	for _, r := range records {
		row := InventoryItem{TenantID: tenantID, SKU: r.SKU, QuantityOnHand: r.QuantityOnHand, UnitCost: r.UnitCost}
		if err := s.check(row); err != nil {
			return fmt.Errorf("inventory sku %q: %w", r.SKU, err)
		}
		rows = append(rows, row)
	}
	return s.db.WithContext(ctx).
		Clauses(onConflictUpdate("quantity_on_hand", "unit_cost", "updated_at")).
		Create(&rows).Error
}

// InsertSales appends sales transactions for a tenant
func (s *Store) InsertSales(ctx context.Context, tenantID string, records []models.SalesRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]SalesTransaction, 0, len(records))
	for _, r := range records {
		row := SalesTransaction{
			TenantID:        tenantID,
			SKU:             r.SKU,
			QuantitySold:    r.QuantitySold,
			Revenue:         r.Revenue,
			TransactionDate: r.TransactionDate,
			Fulfilled:       r.Fulfilled,
		}
		if err := s.check(row); err != nil {
			return fmt.Errorf("sales sku %q: %w", r.SKU, err)
		}
		rows = append(rows, row)
	}
	return s.db.WithContext(ctx).CreateInBatches(&rows, 500).Error
}

// onConflictUpdate upserts on the (tenant_id, sku) unique index
func onConflictUpdate(columns ...string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}
}
