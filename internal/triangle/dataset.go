package triangle

import (
	"fmt"

	"github.com/chainlens/pkg/models"
)

// Dataset is the materialized input of one scoring run
type Dataset struct {
	TenantID   string
	Window     models.TimeRange
	Inventory  []models.InventoryRecord
	Sales      []models.SalesRecord
	PriorSales []models.SalesRecord
}

// WindowDays returns the length of the trailing window in days
func (d Dataset) WindowDays() float64 {
	return d.Window.End.Sub(d.Window.Start).Hours() / 24
}

// Validate rejects records that could not have passed upstream validation
func (d Dataset) Validate() error {
	for _, item := range d.Inventory {
		if item.QuantityOnHand < 0 || item.UnitCost < 0 {
			return fmt.Errorf("%w: inventory sku %s has negative quantity or cost", ErrMalformedInput, item.SKU)
		}
	}
	for _, set := range [][]models.SalesRecord{d.Sales, d.PriorSales} {
		for _, sale := range set {
			if sale.QuantitySold < 0 || sale.Revenue < 0 {
				return fmt.Errorf("%w: sale of sku %s has negative quantity or revenue", ErrMalformedInput, sale.SKU)
			}
		}
	}
	return nil
}

// unitCosts indexes unit cost by SKU
func (d Dataset) unitCosts() map[string]float64 {
	costs := make(map[string]float64, len(d.Inventory))
	for _, item := range d.Inventory {
		costs[item.SKU] = item.UnitCost
	}
	return costs
}

// Assumptions are the configured inputs the datastore cannot provide
type Assumptions struct {
	OnTimeDeliveryRate     float64 `yaml:"on_time_delivery_rate" json:"on_time_delivery_rate"`
	DaysSalesOutstanding   float64 `yaml:"days_sales_outstanding" json:"days_sales_outstanding"`
	DaysPayableOutstanding float64 `yaml:"days_payable_outstanding" json:"days_payable_outstanding"`
	StockoutHorizonDays    float64 `yaml:"stockout_horizon_days" json:"stockout_horizon_days"`
}

// DefaultAssumptions returns the assumptions used when none are configured
func DefaultAssumptions() Assumptions {
	return Assumptions{
		OnTimeDeliveryRate:     90,
		DaysSalesOutstanding:   30,
		DaysPayableOutstanding: 45,
		StockoutHorizonDays:    7,
	}
}

// financials are window totals shared by the cost and capital scorers
type financials struct {
	revenue        float64
	cogs           float64
	inventoryValue float64
}

func computeFinancials(inventory []models.InventoryRecord, sales []models.SalesRecord, costs map[string]float64) financials {
	var f financials
	for _, sale := range sales {
		f.revenue += sale.Revenue
		f.cogs += sale.QuantitySold * costs[sale.SKU]
	}
	for _, item := range inventory {
		f.inventoryValue += item.Value()
	}
	return f
}

func (f financials) grossMargin() float64 {
	return safeDiv(f.revenue-f.cogs, f.revenue) * 100
}
