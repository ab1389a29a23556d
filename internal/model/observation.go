// Package model defines the shared domain types for the indicator pipeline.
package model

import "time"

// Source identifies an upstream data provider. Priority is a small positive
// integer; lower numbers win during canonicalization.
type Source struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Priority   int       `json:"priority"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Observation is one raw fact reported by one source for one series on one
// day. Unique per (series, source, day); re-ingesting the same key refreshes
// the value rather than duplicating the row.
type Observation struct {
	ID        int64     `json:"id"`
	Series    string    `json:"series"`
	SourceID  int64     `json:"source_id"`
	Day       time.Time `json:"day"`
	Value     float64   `json:"value"`
	AuxValue  *float64  `json:"aux_value,omitempty"`
	Warn      string    `json:"warn,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CanonicalObservation is the single observation selected per (series, day)
// by source priority, tie-broken by fetch recency, then by raw row id.
type CanonicalObservation struct {
	Series    string    `json:"series"`
	Day       time.Time `json:"day"`
	Value     float64   `json:"value"`
	AuxValue  *float64  `json:"aux_value,omitempty"`
	SourceID  int64     `json:"source_id"`
	SourceURL string    `json:"source_url"`
	Priority  int       `json:"priority"`
	FetchedAt time.Time `json:"fetched_at"`
	RawID     int64     `json:"raw_id"`
}

// DayOf truncates t to a UTC calendar day. All observation and metric keys
// use day granularity.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
