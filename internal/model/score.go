package model

import "time"

// Driver is one component's contribution to a composite result, ranked by
// |weight * signed z|.
type Driver struct {
	Component    string  `json:"component"`
	SignedZ      float64 `json:"signed_z"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Direction    string  `json:"direction"` // "up" or "down" arrow semantics
}

// ScoreResult is the daily transmission score. Score is bounded to [0,100]
// with 50 neutral. Method records how it was produced ("linear", "logistic",
// "bootstrap", and the weighting scheme actually used).
type ScoreResult struct {
	Day     time.Time `json:"day"`
	Score   float64   `json:"score"`
	Bucket  string    `json:"bucket"`
	Drivers []Driver  `json:"drivers"`
	Method  string    `json:"method"`
}

// StressResult is the second-order stress index blending the transmission
// score with percentile-ranked market components.
type StressResult struct {
	Day     time.Time `json:"day"`
	Index   float64   `json:"index"`
	Bucket  string    `json:"bucket"`
	Drivers []Driver  `json:"drivers"`
}

// Five equal-width bands over [0,100].
var scoreBands = [5]string{"very_loose", "loose", "neutral", "tight", "very_tight"}
var stressBands = [5]string{"calm", "normal", "watch", "strained", "critical"}

// ScoreBucket maps a 0-100 transmission score into its band label.
func ScoreBucket(score float64) string { return band(score, scoreBands) }

// StressBucket maps a 0-100 stress index into its band label.
func StressBucket(index float64) string { return band(index, stressBands) }

func band(v float64, labels [5]string) string {
	switch {
	case v < 20:
		return labels[0]
	case v < 40:
		return labels[1]
	case v < 60:
		return labels[2]
	case v < 80:
		return labels[3]
	default:
		return labels[4]
	}
}
