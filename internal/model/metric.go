package model

import "time"

// MetricMethod names the statistic used to derive a metric.
type MetricMethod string

const (
	MethodStd MetricMethod = "std" // (x - mean) / stdev
	MethodMAD MetricMethod = "mad" // (x - median) / (1.4826 * MAD)
)

// DerivedMetric is one computed statistic for one day, with provenance.
// Computed strictly from canonical observations dated before Day.
type DerivedMetric struct {
	Day     time.Time    `json:"day"`
	Metric  string       `json:"metric"`
	Value   float64      `json:"value"`
	WindowN int          `json:"window_n"`
	SampleN int          `json:"sample_n"`
	Method  MetricMethod `json:"method"`
}

// QuantileBucket is an ordinal position within rolling history.
type QuantileBucket int

// BucketNone marks a value that could not be ranked: history too thin, or a
// distribution too flat for the quantile cuts to mean anything.
const BucketNone QuantileBucket = 0

const (
	BucketBottom QuantileBucket = iota + 1 // <= p20
	BucketLow                              // <= p40
	BucketMid                              // <= p60
	BucketHigh                             // <= p80
	BucketTop                              // > p80
)

func (b QuantileBucket) String() string {
	switch b {
	case BucketBottom:
		return "bottom"
	case BucketLow:
		return "low"
	case BucketMid:
		return "mid"
	case BucketHigh:
		return "high"
	case BucketTop:
		return "top"
	default:
		return "unknown"
	}
}
