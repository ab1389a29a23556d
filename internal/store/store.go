// Package store persists raw observations and everything derived from them.
// Raw rows are the single source of truth: canonical selection, metrics,
// scores, and alerts are all recomputable from the observations table.
package store

import (
	"context"
	"time"

	"github.com/meridian-macro/pulse-cli/internal/model"
)

// AlertFilter specifies criteria for listing alerts.
type AlertFilter struct {
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Code     string         `json:"code,omitempty"`
	Severity model.Severity `json:"severity,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

// Store defines the persistence interface for the indicator pipeline.
type Store interface {
	// Sources. SeedSources inserts missing URLs only; manually overridden
	// priorities survive repeated seeding.
	UpsertSource(ctx context.Context, url string, priority int) (*model.Source, error)
	SeedSources(ctx context.Context, seeds []model.Source) (int, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	SetSourcePriority(ctx context.Context, id int64, priority int) error

	// Raw observations. RecordObservation is an idempotent upsert keyed by
	// (series, source, day); it reports whether a new row was created.
	// ImportObservations is the bulk equivalent for backfills; it returns
	// the number of rows written and does not distinguish insert from
	// refresh.
	RecordObservation(ctx context.Context, obs model.Observation) (bool, error)
	ImportObservations(ctx context.Context, obs []model.Observation) (int64, error)

	// Canonical view: one observation per (series, day) ranked by source
	// priority, then fetch recency, then raw id. Days without raw rows are
	// absent, never synthesized.
	CanonicalRange(ctx context.Context, series string, from, to time.Time) ([]model.CanonicalObservation, error)
	CanonicalOn(ctx context.Context, series string, day time.Time) (*model.CanonicalObservation, error)
	CanonicalBefore(ctx context.Context, series string, day time.Time, limit int) ([]model.CanonicalObservation, error)
	LatestCanonical(ctx context.Context, series string) (*model.CanonicalObservation, error)
	ListSeries(ctx context.Context) ([]string, error)

	// Derived metrics, unique per (day, metric).
	UpsertMetric(ctx context.Context, m model.DerivedMetric) error
	MetricOn(ctx context.Context, metric string, day time.Time) (*model.DerivedMetric, error)
	MetricRange(ctx context.Context, metric string, from, to time.Time) ([]model.DerivedMetric, error)

	// Composite score and stress index, one row per day.
	UpsertScore(ctx context.Context, s model.ScoreResult) error
	ScoreOn(ctx context.Context, day time.Time) (*model.ScoreResult, error)
	MissingScoreDays(ctx context.Context, from, to time.Time) ([]time.Time, error)
	UpsertStress(ctx context.Context, s model.StressResult) error
	StressOn(ctx context.Context, day time.Time) (*model.StressResult, error)

	// Alert thresholds. SeedThresholds inserts missing codes only.
	SeedThresholds(ctx context.Context, defaults []model.ThresholdConfig) (int, error)
	ListThresholds(ctx context.Context) ([]model.ThresholdConfig, error)
	SetThreshold(ctx context.Context, cfg model.ThresholdConfig) error

	// Alerts. ReplaceAlerts atomically deletes all alerts for (day, codes)
	// and inserts the fresh batch, so rules that stop triggering leave no
	// stale rows behind.
	ReplaceAlerts(ctx context.Context, day time.Time, codes []string, alerts []model.Alert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)

	// Run log bookkeeping for compute cycles.
	StartRun(ctx context.Context, job string) (int64, error)
	CompleteRun(ctx context.Context, runID int64, daysProcessed int) error
	FailRun(ctx context.Context, runID int64, errMsg string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
