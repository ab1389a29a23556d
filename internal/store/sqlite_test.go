package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-macro/pulse-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "pulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLiteRecordObservationInsertThenRefresh(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	src, err := st.UpsertSource(ctx, "https://cbr.example/daily", 10)
	require.NoError(t, err)

	obs := model.Observation{
		Series:    "interbank_3m",
		SourceID:  src.ID,
		Day:       day("2026-04-01"),
		Value:     4.25,
		FetchedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	fresh, err := st.RecordObservation(ctx, obs)
	require.NoError(t, err)
	assert.True(t, fresh)

	obs.Value = 4.30
	fresh, err = st.RecordObservation(ctx, obs)
	require.NoError(t, err)
	assert.False(t, fresh, "same (series, source, day) refreshes in place")

	co, err := st.CanonicalOn(ctx, "interbank_3m", obs.Day)
	require.NoError(t, err)
	require.NotNil(t, co)
	assert.InDelta(t, 4.30, co.Value, 1e-12)
}

func TestSQLiteCanonicalPrefersPriorityOverRecency(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	primary, err := st.UpsertSource(ctx, "https://cbr.example/daily", 1)
	require.NoError(t, err)
	backup, err := st.UpsertSource(ctx, "https://moex.example/rates", 50)
	require.NoError(t, err)

	d := day("2026-04-02")
	older := time.Date(2026, 4, 2, 6, 0, 0, 0, time.UTC)

	// The backup fetched four hours later, but the primary's lower priority
	// number still wins.
	_, err = st.RecordObservation(ctx, model.Observation{
		Series: "curve_2y10y", SourceID: backup.ID, Day: d, Value: -0.80, FetchedAt: older.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	_, err = st.RecordObservation(ctx, model.Observation{
		Series: "curve_2y10y", SourceID: primary.ID, Day: d, Value: -0.75, FetchedAt: older,
	})
	require.NoError(t, err)

	co, err := st.CanonicalOn(ctx, "curve_2y10y", d)
	require.NoError(t, err)
	require.NotNil(t, co)
	assert.Equal(t, primary.ID, co.SourceID)
	assert.InDelta(t, -0.75, co.Value, 1e-12)
	assert.Equal(t, "https://cbr.example/daily", co.SourceURL)
}

func TestSQLiteCanonicalBeforeIsStrict(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	src, err := st.UpsertSource(ctx, "https://cbr.example/daily", 1)
	require.NoError(t, err)

	for i, v := range []float64{4.10, 4.20, 4.30} {
		_, err := st.RecordObservation(ctx, model.Observation{
			Series:    "interbank_3m",
			SourceID:  src.ID,
			Day:       day("2026-04-01").AddDate(0, 0, i),
			Value:     v,
			FetchedAt: time.Date(2026, 4, 1+i, 9, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	prior, err := st.CanonicalBefore(ctx, "interbank_3m", day("2026-04-03"), 10)
	require.NoError(t, err)
	require.Len(t, prior, 2, "the target day itself must be excluded")
	assert.Equal(t, day("2026-04-02"), prior[0].Day)
	assert.Equal(t, day("2026-04-01"), prior[1].Day)
}

func TestSQLiteMissingDayIsAbsent(t *testing.T) {
	st := newTestSQLite(t)

	co, err := st.CanonicalOn(context.Background(), "interbank_3m", day("2026-04-05"))
	require.NoError(t, err)
	assert.Nil(t, co, "a day with no raw rows must be absent, not synthesized")
}

func TestSQLiteReplaceAlertsClearsFamilyEvenWhenQuiet(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	d := day("2026-04-03")

	fired := model.Alert{
		Day:         d,
		Code:        "RATE_SPIKE",
		Severity:    model.SeverityHigh,
		Message:     "interbank_3m z-score 3.2 breached 3.0",
		MetricValue: 3.2,
		Threshold:   3.0,
		Evidence: model.Evidence{
			Metric: "interbank_3m_z", Unit: "z", Method: "std", Value: 3.2, Threshold: 3.0,
		},
		CreatedAt: time.Date(2026, 4, 3, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.ReplaceAlerts(ctx, d, []string{"RATE_SPIKE"}, []model.Alert{fired}))

	alerts, err := st.ListAlerts(ctx, AlertFilter{From: d, To: d})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "RATE_SPIKE", alerts[0].Code)
	assert.Equal(t, "interbank_3m_z", alerts[0].Evidence.Metric)
	assert.NotEmpty(t, alerts[0].ID, "an id is assigned on insert")

	// Re-evaluation with nothing triggered leaves no stale rows behind.
	require.NoError(t, st.ReplaceAlerts(ctx, d, []string{"RATE_SPIKE"}, nil))
	alerts, err = st.ListAlerts(ctx, AlertFilter{From: d, To: d})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
