package triangle

import "errors"

var (
	// ErrDataUnavailable is returned when the tenant has no inventory to score
	ErrDataUnavailable = errors.New("no inventory data available for tenant")

	// ErrMalformedInput is returned when negative quantities or costs reach the scorers
	ErrMalformedInput = errors.New("malformed scoring input")

	// ErrAggregationUndefined is returned when a dimension score is zero under the strict policy
	ErrAggregationUndefined = errors.New("harmonic mean undefined for zero dimension score")
)
