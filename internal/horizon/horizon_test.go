package horizon

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-macro/pulse-cli/internal/model"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeHistory struct {
	rows map[string][]model.DerivedMetric
}

func (f *fakeHistory) MetricRange(_ context.Context, metric string, from, to time.Time) ([]model.DerivedMetric, error) {
	var out []model.DerivedMetric
	for _, m := range f.rows[metric] {
		if !m.Day.Before(from) && !m.Day.After(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func seriesOf(metric string, values []float64) []model.DerivedMetric {
	rows := make([]model.DerivedMetric, len(values))
	for i, v := range values {
		rows[i] = model.DerivedMetric{Day: base.AddDate(0, 0, i), Metric: metric, Value: v}
	}
	return rows
}

func window(n int) (time.Time, time.Time) {
	return base, base.AddDate(0, 0, n)
}

func TestTrendRising(t *testing.T) {
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{
		"interbank_3m_z": seriesOf("interbank_3m_z", []float64{-0.5, -0.2, 0.1, 0.6, 1.1, 1.4}),
	}}
	from, to := window(10)

	trend, err := NewAnalyzer(hist).TrendFor(context.Background(), "interbank_3m_z", from, to)
	require.NoError(t, err)
	assert.Equal(t, "rising", trend.Direction)
	assert.InDelta(t, 1.9, trend.Change, 1e-12)
	assert.Equal(t, 6, trend.Samples)
}

func TestTrendFlatWithinBand(t *testing.T) {
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{
		"curve_2y10y_z": seriesOf("curve_2y10y_z", []float64{0.1, 0.15, 0.05, 0.12, 0.2}),
	}}
	from, to := window(10)

	trend, err := NewAnalyzer(hist).TrendFor(context.Background(), "curve_2y10y_z", from, to)
	require.NoError(t, err)
	assert.Equal(t, "flat", trend.Direction)
}

func TestTrendUnavailableWithThinHistory(t *testing.T) {
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{
		"turnover_z": seriesOf("turnover_z", []float64{1, 2}),
	}}
	from, to := window(10)

	_, err := NewAnalyzer(hist).TrendFor(context.Background(), "turnover_z", from, to)
	require.ErrorIs(t, err, ErrUnavailable)
}

// laggedPair builds Y as X delayed by lag days, plus deterministic wiggle.
func laggedPair(n, lag int) (xs, ys []float64) {
	raw := make([]float64, n+lag)
	for i := range raw {
		raw[i] = math.Sin(float64(i)/3) + 0.1*float64(i%5)
	}
	return raw[lag:], raw[:n]
}

func TestLeadLagFindsKnownLag(t *testing.T) {
	const lag = 2
	xVals, yVals := laggedPair(80, lag)
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{
		"interbank_3m_z": seriesOf("interbank_3m_z", xVals),
		"deposit_12m_z":  seriesOf("deposit_12m_z", yVals),
	}}
	from, to := window(100)

	res, err := NewLeadLag(hist).Test(context.Background(), "interbank_3m_z", "deposit_12m_z", from, to, 5)
	require.NoError(t, err)
	assert.Equal(t, lag, res.BestLag)
	assert.Greater(t, math.Abs(res.Statistic), 0.9)
	assert.True(t, res.Informative)
}

func TestLeadLagUnavailableWithFewAlignedDays(t *testing.T) {
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{
		"interbank_3m_z": seriesOf("interbank_3m_z", []float64{1, 2, 3, 4, 5}),
		"deposit_12m_z":  seriesOf("deposit_12m_z", []float64{1, 2, 3, 4, 5}),
	}}
	from, to := window(100)

	_, err := NewLeadLag(hist).Test(context.Background(), "interbank_3m_z", "deposit_12m_z", from, to, 5)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGrangerLiteDetectsPredictivePair(t *testing.T) {
	const lag = 1
	xVals, yVals := laggedPair(80, lag)
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{
		"interbank_3m_z": seriesOf("interbank_3m_z", xVals),
		"deposit_12m_z":  seriesOf("deposit_12m_z", yVals),
	}}
	from, to := window(100)

	res, err := NewGrangerLite(hist).Test(context.Background(), "interbank_3m_z", "deposit_12m_z", from, to, 3)
	require.NoError(t, err)
	assert.Equal(t, "granger-lite", res.Method)
	assert.Greater(t, res.Statistic, 0.0)
}

func TestCausalityTestersSatisfyInterface(t *testing.T) {
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{}}
	testers := []CausalityTester{NewLeadLag(hist), NewGrangerLite(hist)}
	for _, tester := range testers {
		_, err := tester.Test(context.Background(), "a", "b", base, base.AddDate(0, 0, 10), 3)
		require.ErrorIs(t, err, ErrUnavailable, tester.Name())
	}
}
