package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-macro/pulse-cli/internal/config"
	"github.com/meridian-macro/pulse-cli/internal/model"
)

// fakeSource serves canonical observations from an in-memory map keyed by
// series. Days are consecutive starting at base.
type fakeSource struct {
	base   time.Time
	series map[string][]float64
}

func newFakeSource(base time.Time) *fakeSource {
	return &fakeSource{base: base, series: map[string][]float64{}}
}

func (f *fakeSource) dayIndex(day time.Time) int {
	return int(model.DayOf(day).Sub(f.base).Hours() / 24)
}

func (f *fakeSource) CanonicalOn(_ context.Context, series string, day time.Time) (*model.CanonicalObservation, error) {
	values := f.series[series]
	i := f.dayIndex(day)
	if i < 0 || i >= len(values) {
		return nil, nil
	}
	return &model.CanonicalObservation{
		Series: series, Day: model.DayOf(day), Value: values[i],
	}, nil
}

func (f *fakeSource) CanonicalBefore(_ context.Context, series string, day time.Time, limit int) ([]model.CanonicalObservation, error) {
	values := f.series[series]
	i := f.dayIndex(day)
	if i > len(values) {
		i = len(values)
	}
	var out []model.CanonicalObservation
	for j := i - 1; j >= 0 && len(out) < limit; j-- {
		out = append(out, model.CanonicalObservation{
			Series: series, Day: f.base.AddDate(0, 0, j), Value: values[j],
		})
	}
	return out, nil
}

type fakeSink struct{ metrics []model.DerivedMetric }

func (f *fakeSink) UpsertMetric(_ context.Context, m model.DerivedMetric) error {
	f.metrics = append(f.metrics, m)
	return nil
}

func testConfig() config.MetricsConfig {
	return config.MetricsConfig{Lookback: 60, MinSamples: 20, Method: "std", ZCap: 3.0}
}

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// constantThen returns n copies of v followed by the extras.
func constantThen(v float64, n int, extras ...float64) []float64 {
	out := make([]float64, 0, n+len(extras))
	for i := 0; i < n; i++ {
		out = append(out, v)
	}
	return append(out, extras...)
}

func TestComputeSeriesWinsorizesExtremeZ(t *testing.T) {
	src := newFakeSource(base)
	// 35 prior days alternating 45/55: mean 50, stdev just over 5. Day 35
	// reads 90, far beyond three standard deviations.
	history := make([]float64, 35)
	for i := range history {
		if i%2 == 0 {
			history[i] = 45
		} else {
			history[i] = 55
		}
	}
	src.series["interbank_3m"] = append(history, 90)

	eng := NewEngine(src, &fakeSink{}, testConfig(), nil)
	m, err := eng.ComputeSeries(context.Background(), SeriesSpec{Series: "interbank_3m", Metric: "interbank_3m_z"}, base.AddDate(0, 0, 35))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.InDelta(t, 3.0, m.Value, 1e-9, "z beyond the cap must clamp to the cap")
	assert.Equal(t, 35, m.SampleN)
	assert.Equal(t, 60, m.WindowN)
	assert.Equal(t, model.MethodStd, m.Method)
}

func TestComputeSeriesInsufficientHistoryIsNull(t *testing.T) {
	src := newFakeSource(base)
	src.series["interbank_3m"] = constantThen(4.8, 10, 5.0)

	eng := NewEngine(src, &fakeSink{}, testConfig(), nil)
	m, err := eng.ComputeSeries(context.Background(), SeriesSpec{Series: "interbank_3m", Metric: "interbank_3m_z"}, base.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Nil(t, m, "10 prior samples is below the 20-sample floor")
}

func TestComputeSeriesDegenerateSpreadYieldsZero(t *testing.T) {
	src := newFakeSource(base)
	src.series["deposit_12m"] = constantThen(5.0, 30, 5.7)

	eng := NewEngine(src, &fakeSink{}, testConfig(), nil)
	m, err := eng.ComputeSeries(context.Background(), SeriesSpec{Series: "deposit_12m", Metric: "deposit_12m_z"}, base.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Zero(t, m.Value, "flat history implies no deviation, not a division blowup")
}

func TestComputeSeriesExcludesTargetDayFromWindow(t *testing.T) {
	src := newFakeSource(base)
	// History is flat at 100; the target day itself spikes to 500. If the
	// window leaked the target value the stdev would be nonzero and z would
	// be positive. With a clean window the history is degenerate and z is 0.
	src.series["turnover"] = constantThen(100, 30, 500)

	eng := NewEngine(src, &fakeSink{}, testConfig(), nil)
	m, err := eng.ComputeSeries(context.Background(), SeriesSpec{Series: "turnover", Metric: "turnover_z"}, base.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Zero(t, m.Value)
}

func TestComputeSeriesMADMethod(t *testing.T) {
	src := newFakeSource(base)
	// One wild outlier in history: the robust z should barely move compared
	// to a mean/stdev z.
	history := constantThen(50, 29, 500)
	src.series["auction_btc"] = append(history, 52)

	cfg := testConfig()
	cfg.Method = "mad"
	eng := NewEngine(src, &fakeSink{}, cfg, nil)
	m, err := eng.ComputeSeries(context.Background(), SeriesSpec{Series: "auction_btc", Metric: "auction_btc_z"}, base.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.MethodMAD, m.Method)
	assert.Zero(t, m.Value, "median and MAD of a near-constant history ignore the outlier")
}

func TestComputeSeriesMissingDayIsNull(t *testing.T) {
	src := newFakeSource(base)
	src.series["curve_2y10y"] = constantThen(-0.3, 30)

	eng := NewEngine(src, &fakeSink{}, testConfig(), nil)
	m, err := eng.ComputeSeries(context.Background(), SeriesSpec{Series: "curve_2y10y", Metric: "curve_2y10y_z"}, base.AddDate(0, 0, 45))
	require.NoError(t, err)
	assert.Nil(t, m, "a day with no canonical observation produces no metric")
}

func TestComputeDayPersistsAvailableMetrics(t *testing.T) {
	src := newFakeSource(base)
	src.series["interbank_3m"] = constantThen(4.8, 30, 5.0)
	src.series["turnover"] = constantThen(100, 30, 120)
	// curve_2y10y absent entirely; deposit_12m too short.
	src.series["deposit_12m"] = constantThen(5.0, 3, 5.1)

	sink := &fakeSink{}
	eng := NewEngine(src, sink, testConfig(), nil)
	computed, err := eng.ComputeDay(context.Background(), base.AddDate(0, 0, 30))
	require.NoError(t, err)

	names := make([]string, len(computed))
	for i, m := range computed {
		names[i] = m.Metric
	}
	assert.ElementsMatch(t, []string{"interbank_3m_z", "turnover_z", "turnover_5d_z"}, names)
	assert.Len(t, sink.metrics, len(computed))
}

func TestShortWindowSpecUsesOwnHorizon(t *testing.T) {
	src := newFakeSource(base)
	src.series["turnover"] = constantThen(100, 30, 120)

	eng := NewEngine(src, &fakeSink{}, testConfig(), nil)
	m, err := eng.ComputeSeries(context.Background(), SeriesSpec{Series: "turnover", Metric: "turnover_5d_z", Window: 5}, base.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 5, m.WindowN)
	assert.Equal(t, 5, m.SampleN)
}

func TestBucketQuantileCuts(t *testing.T) {
	history := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	assert.Equal(t, model.BucketBottom, Bucket(10, history))
	assert.Equal(t, model.BucketLow, Bucket(40, history))
	assert.Equal(t, model.BucketMid, Bucket(55, history))
	assert.Equal(t, model.BucketHigh, Bucket(80, history))
	assert.Equal(t, model.BucketTop, Bucket(99, history))
}

func TestBucketFlatHistoryIsNotMeaningful(t *testing.T) {
	// With every value identical the quantile cuts collapse; any placement
	// would be a guess.
	flat := constantThen(10, 5)
	assert.Equal(t, model.BucketNone, Bucket(5, flat))
	assert.Equal(t, model.BucketNone, Bucket(10, flat))
	assert.Equal(t, model.BucketNone, Bucket(15, flat))
}

func TestBucketForFlatHistoryIsNotMeaningful(t *testing.T) {
	src := newFakeSource(base)
	src.series["turnover"] = constantThen(100, 40)

	eng := NewEngine(src, &fakeSink{}, testConfig(), nil)
	b, err := eng.BucketFor(context.Background(), SeriesSpec{Series: "turnover", Metric: "turnover_z"}, base.AddDate(0, 0, 39))
	require.NoError(t, err)
	assert.Equal(t, model.BucketNone, b)
}

func TestBucketForReturnsZeroWithoutHistory(t *testing.T) {
	src := newFakeSource(base)
	src.series["turnover"] = constantThen(100, 3, 120)

	eng := NewEngine(src, &fakeSink{}, testConfig(), nil)
	b, err := eng.BucketFor(context.Background(), SeriesSpec{Series: "turnover", Metric: "turnover_z"}, base.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, model.QuantileBucket(0), b)
}
