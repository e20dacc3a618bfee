package triangle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainlens/pkg/models"
)

// DefaultWindowDays is the trailing window used when callers pass none
const DefaultWindowDays = 30

// DataStore reads the rows the scoring chain needs
type DataStore interface {
	ListInventory(ctx context.Context, tenantID string) ([]models.InventoryRecord, error)
	ListSales(ctx context.Context, tenantID string, window models.TimeRange) ([]models.SalesRecord, error)
}

// Collector fetches inventory and sales for a tenant over a trailing window
type Collector struct {
	store DataStore
	now   func() time.Time
}

// NewCollector creates a new metric collector
func NewCollector(store DataStore) *Collector {
	return &Collector{store: store, now: time.Now}
}

// Collect reads the current inventory, the window's sales and the prior
// window's sales concurrently. A tenant with no inventory yields ErrDataUnavailable.
func (c *Collector) Collect(ctx context.Context, tenantID string, windowDays int) (Dataset, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	window := models.TrailingWindow(c.now().UTC(), windowDays)
	prior := models.TrailingWindow(window.Start, windowDays)

	ds := Dataset{TenantID: tenantID, Window: window}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inventory, err := c.store.ListInventory(gctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to list inventory for tenant %s: %w", tenantID, err)
		}
		ds.Inventory = inventory
		return nil
	})
	g.Go(func() error {
		sales, err := c.store.ListSales(gctx, tenantID, window)
		if err != nil {
			return fmt.Errorf("failed to list sales for tenant %s: %w", tenantID, err)
		}
		ds.Sales = sales
		return nil
	})
	g.Go(func() error {
		sales, err := c.store.ListSales(gctx, tenantID, prior)
		if err != nil {
			return fmt.Errorf("failed to list prior sales for tenant %s: %w", tenantID, err)
		}
		ds.PriorSales = sales
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}

	if len(ds.Inventory) == 0 {
		return Dataset{}, fmt.Errorf("%w: tenant %s", ErrDataUnavailable, tenantID)
	}

	return ds, nil
}
