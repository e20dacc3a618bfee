package models

import "time"

// InventoryRecord is the on-hand position of one SKU for a tenant
type InventoryRecord struct {
	SKU            string  `json:"sku"`
	QuantityOnHand float64 `json:"quantity_on_hand"`
	UnitCost       float64 `json:"unit_cost"`
}

// Value returns the capital tied up in the record
func (r InventoryRecord) Value() float64 {
	return r.QuantityOnHand * r.UnitCost
}

// SalesRecord represents a single sales transaction line
type SalesRecord struct {
	SKU             string    `json:"sku"`
	QuantitySold    float64   `json:"quantity_sold"`
	Revenue         float64   `json:"revenue"`
	TransactionDate time.Time `json:"transaction_date"`
	Fulfilled       bool      `json:"fulfilled"`
}

// TimeRange represents a half-open time window [Start, End)
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// TrailingWindow returns the range of the given number of days ending at end
func TrailingWindow(end time.Time, days int) TimeRange {
	return TimeRange{
		Start: end.AddDate(0, 0, -days),
		End:   end,
	}
}
