// Package stats implements the rolling-window statistics the metric engine
// and scorers are built on: mean/stdev and median/MAD z-scores, quantiles,
// winsorization, the normal CDF, and a leading-component PCA fit.
package stats

import (
	"math"
	"sort"
)

// madScale rescales MAD to be consistent with the standard deviation of a
// normal distribution.
const madScale = 1.4826

// epsilon below which a spread statistic is treated as degenerate.
const epsilon = 1e-12

// Mean returns the arithmetic mean of xs, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation of xs, 0 when fewer than two
// values are present.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Median returns the median of xs, 0 for an empty slice.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	s := make([]float64, n)
	copy(s, xs)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// MAD returns the median absolute deviation of xs around its median.
func MAD(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	med := Median(xs)
	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = math.Abs(x - med)
	}
	return Median(devs)
}

// ZScore computes (x - mean) / stdev over history. A degenerate stdev (<= 0)
// yields 0: a flat history legitimately implies no deviation.
func ZScore(x float64, history []float64) float64 {
	sd := StdDev(history)
	if sd <= epsilon {
		return 0
	}
	return (x - Mean(history)) / sd
}

// RobustZScore computes (x - median) / (1.4826 * MAD) over history, 0 when
// the MAD is degenerate.
func RobustZScore(x float64, history []float64) float64 {
	mad := MAD(history)
	if mad <= epsilon {
		return 0
	}
	return (x - Median(history)) / (madScale * mad)
}

// Quantile returns the p-quantile (0 <= p <= 1) of xs using linear
// interpolation between closest ranks.
func Quantile(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	s := make([]float64, n)
	copy(s, xs)
	sort.Float64s(s)
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	frac := pos - float64(lo)
	return s[lo]*(1-frac) + s[hi]*frac
}

// Winsorize clamps z to [-cap, +cap]. A cap <= 0 disables clamping.
func Winsorize(z, cap float64) float64 {
	if cap <= 0 {
		return z
	}
	if z > cap {
		return cap
	}
	if z < -cap {
		return -cap
	}
	return z
}

// Degenerate reports whether a spread value is too small to divide by.
func Degenerate(spread float64) bool {
	return math.Abs(spread) <= epsilon
}
