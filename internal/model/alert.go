package model

import "time"

// Severity tiers for alerts. Z-score rules test high first so only the
// highest matched tier fires per rule per day.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Evidence is the reproducibility payload attached to every alert. All
// fields are required: an alert without its triggering metric, unit, method,
// value, and crossed threshold is not actionable.
type Evidence struct {
	Metric    string  `json:"metric"`
	Unit      string  `json:"unit"`
	Method    string  `json:"method"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Alert is one triggered rule for one day. Alerts in the same rule family
// are fully replaced on each recomputation for the day.
type Alert struct {
	ID          string    `json:"id"`
	Day         time.Time `json:"day"`
	Code        string    `json:"code"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	MetricValue float64   `json:"metric_value"`
	Threshold   float64   `json:"threshold"`
	Evidence    Evidence  `json:"evidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// ThresholdConfig is one named alert rule's stored configuration. Manual
// edits survive re-seeding: seeding inserts missing codes only.
type ThresholdConfig struct {
	Code      string             `json:"code"`
	Enabled   bool               `json:"enabled"`
	Severity  Severity           `json:"severity"`
	Params    map[string]float64 `json:"params"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Param returns a named parameter or the given default when absent.
func (c ThresholdConfig) Param(name string, def float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}
