package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/store"
)

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// fakeStore implements store.Store in memory for handler tests.
type fakeStore struct {
	sources    []model.Source
	series     []string
	canonical  map[string][]model.CanonicalObservation
	metrics    map[string][]model.DerivedMetric
	scores     map[time.Time]*model.ScoreResult
	stress     map[time.Time]*model.StressResult
	alerts     []model.Alert
	thresholds []model.ThresholdConfig
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		canonical: map[string][]model.CanonicalObservation{},
		metrics:   map[string][]model.DerivedMetric{},
		scores:    map[time.Time]*model.ScoreResult{},
		stress:    map[time.Time]*model.StressResult{},
	}
}

func (f *fakeStore) UpsertSource(_ context.Context, url string, priority int) (*model.Source, error) {
	return &model.Source{URL: url, Priority: priority}, nil
}
func (f *fakeStore) SeedSources(_ context.Context, _ []model.Source) (int, error) { return 0, nil }
func (f *fakeStore) ListSources(_ context.Context) ([]model.Source, error) { return f.sources, nil }
func (f *fakeStore) SetSourcePriority(_ context.Context, _ int64, _ int) error { return nil }
func (f *fakeStore) RecordObservation(_ context.Context, _ model.Observation) (bool, error) {
	return false, nil
}
func (f *fakeStore) ImportObservations(_ context.Context, _ []model.Observation) (int64, error) {
	return 0, nil
}
func (f *fakeStore) CanonicalRange(_ context.Context, series string, _, _ time.Time) ([]model.CanonicalObservation, error) {
	return f.canonical[series], nil
}
func (f *fakeStore) CanonicalOn(_ context.Context, _ string, _ time.Time) (*model.CanonicalObservation, error) {
	return nil, nil
}
func (f *fakeStore) CanonicalBefore(_ context.Context, _ string, _ time.Time, _ int) ([]model.CanonicalObservation, error) {
	return nil, nil
}
func (f *fakeStore) LatestCanonical(_ context.Context, series string) (*model.CanonicalObservation, error) {
	rows := f.canonical[series]
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[len(rows)-1], nil
}
func (f *fakeStore) ListSeries(_ context.Context) ([]string, error) { return f.series, nil }
func (f *fakeStore) UpsertMetric(_ context.Context, _ model.DerivedMetric) error {
	return nil
}
func (f *fakeStore) MetricOn(_ context.Context, _ string, _ time.Time) (*model.DerivedMetric, error) {
	return nil, nil
}
func (f *fakeStore) MetricRange(_ context.Context, metric string, _, _ time.Time) ([]model.DerivedMetric, error) {
	return f.metrics[metric], nil
}
func (f *fakeStore) UpsertScore(_ context.Context, _ model.ScoreResult) error { return nil }
func (f *fakeStore) ScoreOn(_ context.Context, day time.Time) (*model.ScoreResult, error) {
	return f.scores[model.DayOf(day)], nil
}
func (f *fakeStore) MissingScoreDays(_ context.Context, _, _ time.Time) ([]time.Time, error) {
	return nil, nil
}
func (f *fakeStore) UpsertStress(_ context.Context, _ model.StressResult) error { return nil }
func (f *fakeStore) StressOn(_ context.Context, day time.Time) (*model.StressResult, error) {
	return f.stress[model.DayOf(day)], nil
}
func (f *fakeStore) SeedThresholds(_ context.Context, _ []model.ThresholdConfig) (int, error) {
	return 0, nil
}
func (f *fakeStore) ListThresholds(_ context.Context) ([]model.ThresholdConfig, error) {
	return f.thresholds, nil
}
func (f *fakeStore) SetThreshold(_ context.Context, _ model.ThresholdConfig) error { return nil }
func (f *fakeStore) ReplaceAlerts(_ context.Context, _ time.Time, _ []string, _ []model.Alert) error {
	return nil
}
func (f *fakeStore) ListAlerts(_ context.Context, filter store.AlertFilter) ([]model.Alert, error) {
	var out []model.Alert
	for _, a := range f.alerts {
		if filter.Code != "" && a.Code != filter.Code {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
func (f *fakeStore) StartRun(_ context.Context, _ string) (int64, error) { return 1, nil }
func (f *fakeStore) CompleteRun(_ context.Context, _ int64, _ int) error { return nil }
func (f *fakeStore) FailRun(_ context.Context, _ int64, _ string) error { return nil }
func (f *fakeStore) Migrate(_ context.Context) error { return nil }
func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)

func serve(t *testing.T, st store.Store, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	NewServer(st).Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, newFakeStore(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestScoreOnDay(t *testing.T) {
	st := newFakeStore()
	st.scores[testDay] = &model.ScoreResult{Day: testDay, Score: 71.2, Bucket: "tight", Method: "linear/static"}

	rec := serve(t, st, http.MethodGet, "/api/v1/score/2026-03-02")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.ScoreResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 71.2, got.Score, 1e-9)
	assert.Equal(t, "tight", got.Bucket)
}

func TestScoreMissingDayIs404(t *testing.T) {
	rec := serve(t, newFakeStore(), http.MethodGet, "/api/v1/score/2026-03-02")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScoreBadDayIs400(t *testing.T) {
	rec := serve(t, newFakeStore(), http.MethodGet, "/api/v1/score/yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStressOnDay(t *testing.T) {
	st := newFakeStore()
	st.stress[testDay] = &model.StressResult{Day: testDay, Index: 62.5, Bucket: "strained"}

	rec := serve(t, st, http.MethodGet, "/api/v1/stress/2026-03-02")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.StressResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "strained", got.Bucket)
}

func TestAlertsFilterByCode(t *testing.T) {
	st := newFakeStore()
	st.alerts = []model.Alert{
		{Code: "RATE_SPIKE", Severity: model.SeverityHigh, Day: testDay},
		{Code: "CURVE_INVERSION", Severity: model.SeverityMedium, Day: testDay},
	}

	rec := serve(t, st, http.MethodGet, "/api/v1/alerts?code=RATE_SPIKE")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []model.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "RATE_SPIKE", got[0].Code)
}

func TestAlertsRejectInvertedRange(t *testing.T) {
	rec := serve(t, newFakeStore(), http.MethodGet, "/api/v1/alerts?from=2026-03-10&to=2026-03-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCanonicalRangeBySeries(t *testing.T) {
	st := newFakeStore()
	st.canonical["interbank_3m"] = []model.CanonicalObservation{
		{Series: "interbank_3m", Day: testDay, Value: 4.85, SourceURL: "https://cbr.example/daily"},
	}

	rec := serve(t, st, http.MethodGet, "/api/v1/canonical/interbank_3m?from=2026-03-01&to=2026-03-05")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []model.CanonicalObservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "https://cbr.example/daily", got[0].SourceURL)
}

func TestStatusSnapshot(t *testing.T) {
	st := newFakeStore()
	st.series = []string{"interbank_3m"}
	st.canonical["interbank_3m"] = []model.CanonicalObservation{
		{Series: "interbank_3m", Day: testDay, Value: 4.85},
	}
	st.scores[testDay] = &model.ScoreResult{Day: testDay, Score: 55, Bucket: "neutral", Method: "linear/static"}

	rec := serve(t, st, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "2026-03-02", got["latest_day"])
	assert.Contains(t, got, "score")
}

func TestThresholdsListing(t *testing.T) {
	st := newFakeStore()
	st.thresholds = []model.ThresholdConfig{
		{Code: "RATE_SPIKE", Enabled: true, Severity: model.SeverityHigh},
	}

	rec := serve(t, st, http.MethodGet, "/api/v1/thresholds")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []model.ThresholdConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "RATE_SPIKE", got[0].Code)
}
