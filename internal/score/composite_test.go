package score

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-macro/pulse-cli/internal/config"
	"github.com/meridian-macro/pulse-cli/internal/model"
)

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// fakeMetrics serves the same metric values for any day.
type fakeMetrics struct {
	values map[string]float64
	score  *model.ScoreResult
}

func (f *fakeMetrics) MetricOn(_ context.Context, metric string, day time.Time) (*model.DerivedMetric, error) {
	v, ok := f.values[metric]
	if !ok {
		return nil, nil
	}
	return &model.DerivedMetric{Day: model.DayOf(day), Metric: metric, Value: v, Method: model.MethodStd}, nil
}

func (f *fakeMetrics) ScoreOn(_ context.Context, _ time.Time) (*model.ScoreResult, error) {
	return f.score, nil
}

func scoreConfig() config.ScoreConfig {
	return config.ScoreConfig{
		Mapping:       "linear",
		Gain:          12.0,
		PosScale:      1.0,
		NegScale:      0.7,
		MinComponents: 3,
	}
}

func TestComputeDaySignsAndScales(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 1.0,  // sign +1 -> +1.0
		"curve_2y10y_z":  -1.0, // sign -1 -> +1.0 (flattening tightens)
		"auction_btc_z":  0.5,  // sign -1 -> -0.5, eased by neg_scale -> -0.35
	}}
	scorer := NewScorer(metrics, scoreConfig(), nil, nil)

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	require.NotNil(t, res)

	// Three present components at equal weight: avg = (1 + 1 - 0.35) / 3.
	assert.InDelta(t, 50+12*0.55, res.Score, 1e-9)
	assert.Equal(t, "neutral", res.Bucket)
	assert.Equal(t, "linear/static", res.Method)

	require.Len(t, res.Drivers, 3)
	// Sorted by |contribution|: the two +1.0 components lead.
	assert.Equal(t, "easing", res.Drivers[2].Direction)
	assert.Equal(t, "auction_btc_z", res.Drivers[2].Component)
	assert.InDelta(t, -0.35/3, res.Drivers[2].Contribution, 1e-9)
}

func TestComputeDayBootstrapBelowMinComponents(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 2.0,
		"curve_2y10y_z":  -1.5,
	}}
	scorer := NewScorer(metrics, scoreConfig(), nil, nil)

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 50.0, res.Score)
	assert.Equal(t, "bootstrap", res.Method)
	assert.Empty(t, res.Drivers)
}

func TestComputeDayClampsToBounds(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 5.0,
		"deposit_12m_z":  5.0,
		"curve_2y10y_z":  -5.0,
		"auction_btc_z":  -5.0,
		"turnover_z":     -5.0,
	}}
	scorer := NewScorer(metrics, scoreConfig(), nil, nil)

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score, "50 + 12*5 exceeds the ceiling and must clamp")
	assert.Equal(t, "very_tight", res.Bucket)

	for k := range metrics.values {
		metrics.values[k] = -metrics.values[k]
	}
	res, err = scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, "very_loose", res.Bucket)
}

func TestComputeDayWinsorizesScaledValues(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 3.0,
		"curve_2y10y_z":  0,
		"auction_btc_z":  0,
	}}
	cfg := scoreConfig()
	cfg.PosScale = 2.0
	cfg.ZCap = 3.0
	scorer := NewScorer(metrics, cfg, nil, nil)

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	require.NotNil(t, res)

	// pos_scale doubles the capped z to 6; the cap pulls it back to 3, so
	// the equal-weight average is 1.
	assert.InDelta(t, 50+12*1.0, res.Score, 1e-9)
	assert.Equal(t, "interbank_3m_z", res.Drivers[0].Component)
	assert.InDelta(t, 3.0, res.Drivers[0].SignedZ, 1e-9)
}

func TestComputeDayKeepsTopThreeDrivers(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 2.0,
		"deposit_12m_z":  -0.5,
		"curve_2y10y_z":  -1.0,
		"auction_btc_z":  0.4,
		"turnover_z":     -0.1,
	}}
	scorer := NewScorer(metrics, scoreConfig(), nil, nil)

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Drivers, 3)
	assert.Equal(t, "interbank_3m_z", res.Drivers[0].Component)
	assert.Equal(t, "curve_2y10y_z", res.Drivers[1].Component)
	assert.Equal(t, "deposit_12m_z", res.Drivers[2].Component)
}

func TestComputeDayLogisticMappingNeutralAtZero(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 0,
		"curve_2y10y_z":  0,
		"auction_btc_z":  0,
	}}
	cfg := scoreConfig()
	cfg.Mapping = "logistic"
	scorer := NewScorer(metrics, cfg, nil, nil)

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, res.Score, 1e-9)
	assert.Equal(t, "logistic/static", res.Method)
}

func TestComputeDayRenormalizesOverMissing(t *testing.T) {
	// Custom weights concentrate on a component that is missing; the present
	// ones must be renormalized, not diluted against absent mass.
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 1.0,
		"curve_2y10y_z":  0,
		"auction_btc_z":  0,
	}}
	cfg := scoreConfig()
	cfg.Weights = map[string]float64{
		"turnover_z":     0.6, // missing
		"interbank_3m_z": 0.2,
		"curve_2y10y_z":  0.1,
		"auction_btc_z":  0.1,
	}
	scorer := NewScorer(metrics, cfg, nil, nil)

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	// interbank carries 0.2 / (0.2+0.1+0.1) = 0.5 of the present mass.
	assert.InDelta(t, 50+12*0.5, res.Score, 1e-9)
}

// stubFitter is a WeightFitter with a canned answer.
type stubFitter struct {
	name    string
	weights map[string]float64
	err     error
}

func (s *stubFitter) Name() string { return s.name }
func (s *stubFitter) Fit(_ context.Context, _ time.Time) (map[string]float64, error) {
	return s.weights, s.err
}

func TestComputeDayDynamicWeightsUsedWhenAvailable(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 1.0,
		"curve_2y10y_z":  0,
		"auction_btc_z":  0,
	}}
	cfg := scoreConfig()
	cfg.DynamicWeight = true
	dynamic := &stubFitter{name: "pca", weights: map[string]float64{
		"interbank_3m_z": 1.0,
	}}
	scorer := NewScorer(metrics, cfg, nil, dynamic)

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.Equal(t, "linear/pca", res.Method)
	assert.InDelta(t, 50+12*1.0, res.Score, 1e-9)
}

func TestComputeDayFallsBackWhenDynamicUnavailable(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		"interbank_3m_z": 1.0,
		"curve_2y10y_z":  0,
		"auction_btc_z":  0,
	}}
	cfg := scoreConfig()
	cfg.DynamicWeight = true
	scorer := NewScorer(metrics, cfg, nil, &stubFitter{name: "pca", err: ErrUnavailable})

	res, err := scorer.ComputeDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.Equal(t, "linear/static", res.Method)
}

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

func TestPCAWeightsEqualForPerfectlyCorrelatedPair(t *testing.T) {
	basket := []Component{
		{Metric: "interbank_3m_z", Sign: +1},
		{Metric: "deposit_12m_z", Sign: +1},
	}
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{}}
	start := testDay.AddDate(0, 0, -60)
	for i := 0; i < 50; i++ {
		d := start.AddDate(0, 0, i)
		v := float64(i%7) - 3
		hist.rows["interbank_3m_z"] = append(hist.rows["interbank_3m_z"],
			model.DerivedMetric{Day: d, Metric: "interbank_3m_z", Value: v})
		hist.rows["deposit_12m_z"] = append(hist.rows["deposit_12m_z"],
			model.DerivedMetric{Day: d, Metric: "deposit_12m_z", Value: 2 * v})
	}

	fitter := NewPCAWeights(hist, basket, 120, 40)
	weights, err := fitter.Fit(context.Background(), testDay)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, weights["interbank_3m_z"], 1e-6)
	assert.InDelta(t, 0.5, weights["deposit_12m_z"], 1e-6)
}

func TestPCAWeightsUnavailableWithThinHistory(t *testing.T) {
	basket := []Component{
		{Metric: "interbank_3m_z", Sign: +1},
		{Metric: "deposit_12m_z", Sign: +1},
	}
	hist := &fakeHistory{rows: map[string][]model.DerivedMetric{}}
	for i := 0; i < 10; i++ {
		d := testDay.AddDate(0, 0, -i-1)
		hist.rows["interbank_3m_z"] = append(hist.rows["interbank_3m_z"],
			model.DerivedMetric{Day: d, Metric: "interbank_3m_z", Value: float64(i)})
		hist.rows["deposit_12m_z"] = append(hist.rows["deposit_12m_z"],
			model.DerivedMetric{Day: d, Metric: "deposit_12m_z", Value: float64(-i)})
	}

	fitter := NewPCAWeights(hist, basket, 120, 40)
	_, err := fitter.Fit(context.Background(), testDay)
	require.ErrorIs(t, err, ErrUnavailable)
}
