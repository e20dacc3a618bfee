package triangle

import "github.com/chainlens/pkg/models"

// Service score weights
const (
	weightFillRate       = 0.3
	weightStockoutRisk   = 0.3
	weightOnTimeDelivery = 0.2
	weightSatisfaction   = 0.2
)

// ServiceMetricsFor derives fill rate, stockout risk and the delivery proxies
func ServiceMetricsFor(d Dataset, a Assumptions) models.ServiceMetrics {
	var demanded, fulfilled float64
	soldBySKU := make(map[string]float64)
	for _, sale := range d.Sales {
		demanded += sale.QuantitySold
		if sale.Fulfilled {
			fulfilled += sale.QuantitySold
		}
		soldBySKU[sale.SKU] += sale.QuantitySold
	}

	fillRate := safeDiv(fulfilled, demanded) * 100

	windowDays := d.WindowDays()
	atRisk := 0
	for _, item := range d.Inventory {
		dailySales := safeDiv(soldBySKU[item.SKU], windowDays)
		if dailySales == 0 {
			continue
		}
		if item.QuantityOnHand/dailySales < a.StockoutHorizonDays {
			atRisk++
		}
	}
	stockoutRisk := safeDiv(float64(atRisk), float64(len(d.Inventory))) * 100

	onTime := clampScore(a.OnTimeDeliveryRate)

	return models.ServiceMetrics{
		FillRate:             fillRate,
		StockoutRisk:         stockoutRisk,
		OnTimeDelivery:       onTime,
		CustomerSatisfaction: 0.6*fillRate + 0.4*onTime,
	}
}

// serviceComponents returns the weighted contribution of each sub-metric
func serviceComponents(m models.ServiceMetrics) [4]float64 {
	return [4]float64{
		clampScore(m.FillRate) * weightFillRate,
		clampScore(100-m.StockoutRisk) * weightStockoutRisk,
		clampScore(m.OnTimeDelivery) * weightOnTimeDelivery,
		clampScore(m.CustomerSatisfaction) * weightSatisfaction,
	}
}

// ServiceScore combines service sub-metrics into a 0-100 score
func ServiceScore(m models.ServiceMetrics) float64 {
	return clampScore(sum(serviceComponents(m)))
}
