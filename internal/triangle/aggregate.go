package triangle

import (
	"fmt"

	"github.com/chainlens/pkg/models"
)

// ZeroScorePolicy decides how the aggregator treats a dimension score of 0
type ZeroScorePolicy string

const (
	// ZeroPolicyStrict fails with ErrAggregationUndefined
	ZeroPolicyStrict ZeroScorePolicy = "strict"
	// ZeroPolicyZero reports an overall score of 0, the limit of the harmonic mean
	ZeroPolicyZero ZeroScorePolicy = "zero"
	// ZeroPolicyFloor raises zero inputs to 1 before aggregating
	ZeroPolicyFloor ZeroScorePolicy = "floor"
)

// Valid reports whether p is a known policy
func (p ZeroScorePolicy) Valid() bool {
	switch p {
	case ZeroPolicyStrict, ZeroPolicyZero, ZeroPolicyFloor:
		return true
	}
	return false
}

// ScoreDimensions scores each dimension of m independently
func ScoreDimensions(m models.TriangleMetrics) models.DimensionScore {
	return models.DimensionScore{
		ServiceScore: ServiceScore(m.Service),
		CostScore:    CostScore(m.Cost),
		CapitalScore: CapitalScore(m.Capital),
	}
}

// HarmonicMean combines the three dimension scores into the overall score
func HarmonicMean(service, cost, capital float64, policy ZeroScorePolicy) (float64, error) {
	scores := []float64{service, cost, capital}

	for i, s := range scores {
		if s > 0 {
			continue
		}
		switch policy {
		case ZeroPolicyZero:
			return 0, nil
		case ZeroPolicyFloor:
			scores[i] = 1
		default:
			return 0, fmt.Errorf("%w: service=%.2f cost=%.2f capital=%.2f",
				ErrAggregationUndefined, service, cost, capital)
		}
	}

	reciprocals := 0.0
	for _, s := range scores {
		reciprocals += 1 / s
	}

	return clampScore(float64(len(scores)) / reciprocals), nil
}
