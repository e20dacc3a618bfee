package triangle

import "github.com/chainlens/pkg/models"

// Capital score weights
const (
	weightTurnover       = 0.3
	weightWorkingCapital = 0.2
	weightCashCycle      = 0.3
	weightROCE           = 0.2

	daysPerYear = 365.0
)

// CapitalMetricsFor derives turnover, working capital, cash cycle and ROCE.
// Window totals are annualized before comparing them with balance amounts.
func CapitalMetricsFor(d Dataset, a Assumptions) models.CapitalMetrics {
	f := computeFinancials(d.Inventory, d.Sales, d.unitCosts())

	annualize := safeDiv(daysPerYear, d.WindowDays())
	annualCOGS := f.cogs * annualize
	annualRevenue := f.revenue * annualize

	receivables := annualRevenue * a.DaysSalesOutstanding / daysPerYear
	payables := annualCOGS * a.DaysPayableOutstanding / daysPerYear

	var cashCycle float64
	if annualCOGS > 0 {
		daysInventory := f.inventoryValue / annualCOGS * daysPerYear
		cashCycle = daysInventory + a.DaysSalesOutstanding - a.DaysPayableOutstanding
	}

	var roce float64
	if employed := f.inventoryValue + receivables - payables; employed > 0 {
		roce = (annualRevenue - annualCOGS) / employed * 100
	}

	return models.CapitalMetrics{
		InventoryTurnover:   safeDiv(annualCOGS, f.inventoryValue),
		WorkingCapitalRatio: safeDiv(f.inventoryValue+receivables, payables),
		CashConversionCycle: cashCycle,
		ROCE:                roce,
	}
}

func capitalComponents(m models.CapitalMetrics) [4]float64 {
	// without turnover there is no cycle to measure
	cycle := 0.0
	if m.InventoryTurnover > 0 {
		cycle = clampScore(100 - m.CashConversionCycle)
	}
	return [4]float64{
		clampScore(m.InventoryTurnover*10) * weightTurnover,
		clampScore(m.WorkingCapitalRatio*50) * weightWorkingCapital,
		cycle * weightCashCycle,
		clampScore(m.ROCE*0.5) * weightROCE,
	}
}

// CapitalScore combines capital sub-metrics into a 0-100 score
func CapitalScore(m models.CapitalMetrics) float64 {
	return clampScore(sum(capitalComponents(m)))
}
