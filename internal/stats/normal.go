package stats

import "math"

// NormalCDF returns the standard normal cumulative distribution at z,
// computed from the error function. It maps z-scores onto percentiles and is
// shared by the stress aggregator and the diagnostic tooling; keep it as a
// named primitive rather than inlining the erf call.
func NormalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// ZToPercentile maps a z-score onto the 0-100 percentile scale.
func ZToPercentile(z float64) float64 {
	return 100 * NormalCDF(z)
}
