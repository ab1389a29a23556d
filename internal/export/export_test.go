package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/store"
)

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fakeReader struct {
	scores  map[time.Time]*model.ScoreResult
	stress  map[time.Time]*model.StressResult
	metrics map[string][]model.DerivedMetric
	alerts  []model.Alert
}

func (f *fakeReader) ScoreOn(_ context.Context, day time.Time) (*model.ScoreResult, error) {
	return f.scores[model.DayOf(day)], nil
}

func (f *fakeReader) StressOn(_ context.Context, day time.Time) (*model.StressResult, error) {
	return f.stress[model.DayOf(day)], nil
}

func (f *fakeReader) MetricRange(_ context.Context, metric string, _, _ time.Time) ([]model.DerivedMetric, error) {
	return f.metrics[metric], nil
}

func (f *fakeReader) ListAlerts(_ context.Context, _ store.AlertFilter) ([]model.Alert, error) {
	return f.alerts, nil
}

func populatedReader() *fakeReader {
	return &fakeReader{
		scores: map[time.Time]*model.ScoreResult{
			testDay: {Day: testDay, Score: 71.2, Bucket: "tight", Method: "linear/static",
				Drivers: []model.Driver{{Component: "interbank_3m_z", Contribution: 0.5}}},
		},
		stress: map[time.Time]*model.StressResult{
			testDay: {Day: testDay, Index: 62.5, Bucket: "strained"},
		},
		metrics: map[string][]model.DerivedMetric{
			"interbank_3m_z": {
				{Day: testDay, Metric: "interbank_3m_z", Value: 1.8, WindowN: 60, SampleN: 42, Method: model.MethodStd},
			},
		},
		alerts: []model.Alert{
			{Day: testDay, Code: "RATE_SPIKE", Severity: model.SeverityHigh,
				Message: "spike", MetricValue: 3.4, Threshold: 3.0},
		},
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.xlsx")
	exp := NewExporter(populatedReader(), []string{"interbank_3m_z"})

	err := exp.WriteWorkbook(context.Background(), path, testDay.AddDate(0, 0, -2), testDay)
	require.NoError(t, err)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	scores, ok := f.Sheet["Scores"]
	require.True(t, ok)
	require.Len(t, scores.Rows, 2, "header plus one score row")
	assert.Equal(t, "2026-03-02", scores.Rows[1].Cells[0].String())
	assert.Equal(t, "tight", scores.Rows[1].Cells[2].String())
	assert.Equal(t, "interbank_3m_z", scores.Rows[1].Cells[4].String())

	stress, ok := f.Sheet["Stress"]
	require.True(t, ok)
	require.Len(t, stress.Rows, 2)

	metrics, ok := f.Sheet["Metrics"]
	require.True(t, ok)
	require.Len(t, metrics.Rows, 2)
	assert.Equal(t, "interbank_3m_z", metrics.Rows[1].Cells[1].String())

	alerts, ok := f.Sheet["Alerts"]
	require.True(t, ok)
	require.Len(t, alerts.Rows, 2)
	assert.Equal(t, "RATE_SPIKE", alerts.Rows[1].Cells[1].String())
}

func TestWriteWorkbookRejectsInvertedRange(t *testing.T) {
	exp := NewExporter(populatedReader(), nil)
	err := exp.WriteWorkbook(context.Background(), filepath.Join(t.TempDir(), "x.xlsx"), testDay, testDay.AddDate(0, 0, -1))
	require.Error(t, err)
}

func TestWriteScoresCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")
	exp := NewExporter(populatedReader(), nil)

	err := exp.WriteScoresCSV(context.Background(), path, testDay.AddDate(0, 0, -2), testDay)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []scoreCSVRow
	require.NoError(t, csvutil.Unmarshal(data, &rows))
	require.Len(t, rows, 1, "days without a score are skipped")
	assert.Equal(t, "2026-03-02", rows[0].Day)
	assert.InDelta(t, 71.2, rows[0].Score, 1e-9)
}
