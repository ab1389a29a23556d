// Package metrics derives rolling statistics from canonical observations.
// Every statistic for day D is computed only from canonical values dated
// strictly before D, so a metric can never see the observation it describes.
package metrics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/config"
	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/stats"
)

// CanonicalSource is the slice of the store the engine reads from.
type CanonicalSource interface {
	CanonicalOn(ctx context.Context, series string, day time.Time) (*model.CanonicalObservation, error)
	CanonicalBefore(ctx context.Context, series string, day time.Time, limit int) ([]model.CanonicalObservation, error)
}

// MetricSink receives computed metrics.
type MetricSink interface {
	UpsertMetric(ctx context.Context, m model.DerivedMetric) error
}

// SeriesSpec describes how one raw series becomes one derived metric.
// A zero Window or empty Method falls back to the engine defaults.
type SeriesSpec struct {
	Series string
	Metric string
	Window int
	Method model.MetricMethod
}

// DefaultSpecs is the standard basket. Turnover gets two horizons: the
// 60-day z-score feeds the composite, the 5-day one is a fast diagnostic.
func DefaultSpecs() []SeriesSpec {
	return []SeriesSpec{
		{Series: "interbank_3m", Metric: "interbank_3m_z"},
		{Series: "curve_2y10y", Metric: "curve_2y10y_z"},
		{Series: "auction_btc", Metric: "auction_btc_z"},
		{Series: "turnover", Metric: "turnover_z"},
		{Series: "turnover", Metric: "turnover_5d_z", Window: 5},
		{Series: "deposit_12m", Metric: "deposit_12m_z"},
	}
}

// Engine computes z-scores and quantile buckets over rolling windows.
type Engine struct {
	src   CanonicalSource
	sink  MetricSink
	cfg   config.MetricsConfig
	specs []SeriesSpec
	log   *zap.Logger
}

func NewEngine(src CanonicalSource, sink MetricSink, cfg config.MetricsConfig, specs []SeriesSpec) *Engine {
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}
	return &Engine{
		src:   src,
		sink:  sink,
		cfg:   cfg,
		specs: specs,
		log:   zap.L().With(zap.String("component", "metrics")),
	}
}

// ComputeSeries derives one metric for one day. It returns (nil, nil) when
// the day has no canonical observation or the prior history is below the
// minimum sample count: a missing metric is null, never a guess.
func (e *Engine) ComputeSeries(ctx context.Context, spec SeriesSpec, day time.Time) (*model.DerivedMetric, error) {
	window := spec.Window
	if window <= 0 {
		window = e.cfg.Lookback
	}
	method := spec.Method
	if method == "" {
		method = model.MetricMethod(e.cfg.Method)
	}
	minSamples := e.minSamplesFor(window)

	current, err := e.src.CanonicalOn(ctx, spec.Series, day)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	history, err := e.history(ctx, spec.Series, day, window)
	if err != nil {
		return nil, err
	}
	if len(history) < minSamples {
		e.log.Debug("insufficient history",
			zap.String("metric", spec.Metric),
			zap.Time("day", model.DayOf(day)),
			zap.Int("samples", len(history)),
			zap.Int("required", minSamples))
		return nil, nil
	}

	var z float64
	switch method {
	case model.MethodMAD:
		z = stats.RobustZScore(current.Value, history)
	default:
		method = model.MethodStd
		z = stats.ZScore(current.Value, history)
	}
	z = stats.Winsorize(z, e.cfg.ZCap)

	return &model.DerivedMetric{
		Day:     model.DayOf(day),
		Metric:  spec.Metric,
		Value:   z,
		WindowN: window,
		SampleN: len(history),
		Method:  method,
	}, nil
}

// BucketFor places the day's canonical value within its prior history using
// the 20/40/60/80 quantile cuts. Returns BucketNone when history is
// insufficient or too flat to rank.
func (e *Engine) BucketFor(ctx context.Context, spec SeriesSpec, day time.Time) (model.QuantileBucket, error) {
	window := spec.Window
	if window <= 0 {
		window = e.cfg.Lookback
	}
	current, err := e.src.CanonicalOn(ctx, spec.Series, day)
	if err != nil {
		return 0, err
	}
	if current == nil {
		return 0, nil
	}
	history, err := e.history(ctx, spec.Series, day, window)
	if err != nil {
		return 0, err
	}
	if len(history) < e.minSamplesFor(window) {
		return 0, nil
	}
	return Bucket(current.Value, history), nil
}

// ComputeDay derives the full basket for one day and persists what it can.
// Null metrics are skipped silently; their absence is the signal.
func (e *Engine) ComputeDay(ctx context.Context, day time.Time) ([]model.DerivedMetric, error) {
	var computed []model.DerivedMetric
	for _, spec := range e.specs {
		m, err := e.ComputeSeries(ctx, spec, day)
		if err != nil {
			return computed, eris.Wrapf(err, "metrics: compute %s", spec.Metric)
		}
		if m == nil {
			continue
		}
		if err := e.sink.UpsertMetric(ctx, *m); err != nil {
			return computed, eris.Wrapf(err, "metrics: persist %s", spec.Metric)
		}
		computed = append(computed, *m)
	}
	return computed, nil
}

func (e *Engine) history(ctx context.Context, series string, day time.Time, window int) ([]float64, error) {
	prior, err := e.src.CanonicalBefore(ctx, series, day, window)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(prior))
	for i, co := range prior {
		values[i] = co.Value
	}
	return values, nil
}

// minSamplesFor shrinks the configured minimum for short windows so that a
// deliberately fast horizon (e.g. 5 days) is not permanently null.
func (e *Engine) minSamplesFor(window int) int {
	min := e.cfg.MinSamples
	if window < min {
		min = window
	}
	if min < 2 {
		min = 2
	}
	return min
}

// Bucket places x within history by quantile cut: <=p20 bottom, <=p40 low,
// <=p60 mid, <=p80 high, above p80 top. A degenerate p20-p80 spread yields
// BucketNone: a flat history cannot rank its members.
func Bucket(x float64, history []float64) model.QuantileBucket {
	p20 := stats.Quantile(history, 0.20)
	p80 := stats.Quantile(history, 0.80)
	if stats.Degenerate(p80 - p20) {
		return model.BucketNone
	}
	switch {
	case x <= p20:
		return model.BucketBottom
	case x <= stats.Quantile(history, 0.40):
		return model.BucketLow
	case x <= stats.Quantile(history, 0.60):
		return model.BucketMid
	case x <= p80:
		return model.BucketHigh
	default:
		return model.BucketTop
	}
}
