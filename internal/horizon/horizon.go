// Package horizon provides longer-range diagnostics over stored metrics:
// trend summaries and pairwise lead-lag analysis. These read history only,
// they never feed back into scoring.
package horizon

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/stats"
)

// ErrUnavailable signals that a diagnostic cannot be produced from the data
// on hand. Callers report "unavailable" rather than failing.
var ErrUnavailable = eris.New("horizon: insufficient data")

// History is the slice of the store this package reads from.
type History interface {
	MetricRange(ctx context.Context, metric string, from, to time.Time) ([]model.DerivedMetric, error)
}

// Trend summarizes one metric's recent path.
type Trend struct {
	Metric    string  `json:"metric"`
	Samples   int     `json:"samples"`
	First     float64 `json:"first"`
	Last      float64 `json:"last"`
	Change    float64 `json:"change"`
	Mean      float64 `json:"mean"`
	Stdev     float64 `json:"stdev"`
	Direction string  `json:"direction"` // "rising", "falling", "flat"
}

// flatBand is the change magnitude below which a trend reads as flat.
const flatBand = 0.25

// minTrendSamples is the fewest points a trend summary is built from.
const minTrendSamples = 5

// Analyzer computes horizon diagnostics.
type Analyzer struct {
	hist History
	log  *zap.Logger
}

func NewAnalyzer(hist History) *Analyzer {
	return &Analyzer{
		hist: hist,
		log:  zap.L().With(zap.String("component", "horizon")),
	}
}

// TrendFor summarizes one metric over [from, to].
func (a *Analyzer) TrendFor(ctx context.Context, metric string, from, to time.Time) (*Trend, error) {
	rows, err := a.hist.MetricRange(ctx, metric, from, to)
	if err != nil {
		return nil, err
	}
	if len(rows) < minTrendSamples {
		return nil, ErrUnavailable
	}
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Value
	}

	change := values[len(values)-1] - values[0]
	direction := "flat"
	switch {
	case change > flatBand:
		direction = "rising"
	case change < -flatBand:
		direction = "falling"
	}
	return &Trend{
		Metric:    metric,
		Samples:   len(values),
		First:     values[0],
		Last:      values[len(values)-1],
		Change:    change,
		Mean:      stats.Mean(values),
		Stdev:     stats.StdDev(values),
		Direction: direction,
	}, nil
}

// CausalityResult reports how metric X relates to future values of metric Y.
type CausalityResult struct {
	X           string  `json:"x"`
	Y           string  `json:"y"`
	Method      string  `json:"method"`
	BestLag     int     `json:"best_lag"`
	Statistic   float64 `json:"statistic"`
	Samples     int     `json:"samples"`
	Informative bool    `json:"informative"`
}

// CausalityTester is a capability interface: implementations that cannot
// serve a pair return ErrUnavailable and callers degrade gracefully.
type CausalityTester interface {
	Name() string
	Test(ctx context.Context, x, y string, from, to time.Time, maxLag int) (*CausalityResult, error)
}

// minPairSamples is the fewest aligned days a pairwise test runs on.
const minPairSamples = 30

// LeadLag scans cross-correlations of X against Y shifted by 1..maxLag days
// and reports the lag with the strongest absolute correlation.
type LeadLag struct {
	hist History
}

func NewLeadLag(hist History) *LeadLag { return &LeadLag{hist: hist} }

func (l *LeadLag) Name() string { return "leadlag" }

func (l *LeadLag) Test(ctx context.Context, x, y string, from, to time.Time, maxLag int) (*CausalityResult, error) {
	if maxLag <= 0 {
		maxLag = 5
	}
	xs, ys, err := alignedSeries(ctx, l.hist, x, y, from, to)
	if err != nil {
		return nil, err
	}
	if len(xs) < minPairSamples+maxLag {
		return nil, ErrUnavailable
	}

	bestLag, bestCorr := 0, 0.0
	for lag := 1; lag <= maxLag; lag++ {
		// X today against Y lag days later.
		c := stats.Correlation(xs[:len(xs)-lag], ys[lag:])
		if math.Abs(c) > math.Abs(bestCorr) {
			bestLag, bestCorr = lag, c
		}
	}
	return &CausalityResult{
		X:           x,
		Y:           y,
		Method:      l.Name(),
		BestLag:     bestLag,
		Statistic:   bestCorr,
		Samples:     len(xs),
		Informative: math.Abs(bestCorr) >= 0.3,
	}, nil
}

// GrangerLite compares an AR(1) fit of Y against the same fit augmented with
// lagged X. The statistic is the fraction of residual variance the lagged X
// explains; it is a screening heuristic, not a significance test.
type GrangerLite struct {
	hist History
}

func NewGrangerLite(hist History) *GrangerLite { return &GrangerLite{hist: hist} }

func (g *GrangerLite) Name() string { return "granger-lite" }

func (g *GrangerLite) Test(ctx context.Context, x, y string, from, to time.Time, maxLag int) (*CausalityResult, error) {
	if maxLag <= 0 {
		maxLag = 1
	}
	xs, ys, err := alignedSeries(ctx, g.hist, x, y, from, to)
	if err != nil {
		return nil, err
	}
	if len(xs) < minPairSamples+maxLag {
		return nil, ErrUnavailable
	}

	bestLag, bestGain := 0, 0.0
	for lag := 1; lag <= maxLag; lag++ {
		restricted := residualVarianceAR1(ys[lag:], ys[lag-1:len(ys)-1])
		unrestricted := residualVarianceAR1X(ys[lag:], ys[lag-1:len(ys)-1], xs[:len(xs)-lag])
		if stats.Degenerate(restricted) {
			continue
		}
		gain := 1 - unrestricted/restricted
		if gain > bestGain {
			bestLag, bestGain = lag, gain
		}
	}
	if bestLag == 0 {
		return nil, ErrUnavailable
	}
	return &CausalityResult{
		X:           x,
		Y:           y,
		Method:      g.Name(),
		BestLag:     bestLag,
		Statistic:   bestGain,
		Samples:     len(xs),
		Informative: bestGain >= 0.1,
	}, nil
}

// alignedSeries joins two metric histories on shared days, ascending.
func alignedSeries(ctx context.Context, hist History, x, y string, from, to time.Time) ([]float64, []float64, error) {
	xRows, err := hist.MetricRange(ctx, x, from, to)
	if err != nil {
		return nil, nil, err
	}
	yRows, err := hist.MetricRange(ctx, y, from, to)
	if err != nil {
		return nil, nil, err
	}
	yByDay := make(map[time.Time]float64, len(yRows))
	for _, r := range yRows {
		yByDay[model.DayOf(r.Day)] = r.Value
	}
	var xs, ys []float64
	for _, r := range xRows {
		if v, ok := yByDay[model.DayOf(r.Day)]; ok {
			xs = append(xs, r.Value)
			ys = append(ys, v)
		}
	}
	return xs, ys, nil
}

// residualVarianceAR1 fits y_t = a + b*yLag_t by least squares and returns
// the residual variance.
func residualVarianceAR1(y, yLag []float64) float64 {
	b, a := ols1(y, yLag)
	var ss float64
	for i := range y {
		r := y[i] - a - b*yLag[i]
		ss += r * r
	}
	return ss / float64(len(y))
}

// residualVarianceAR1X fits y_t = a + b*yLag_t + c*xLag_t via one sweep of
// backfitting, close enough for a screening statistic.
func residualVarianceAR1X(y, yLag, xLag []float64) float64 {
	b, a := ols1(y, yLag)
	resid := make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - a - b*yLag[i]
	}
	c, a2 := ols1(resid, xLag)
	var ss float64
	for i := range y {
		r := resid[i] - a2 - c*xLag[i]
		ss += r * r
	}
	return ss / float64(len(y))
}

// ols1 returns slope and intercept of the least-squares line y = a + b*x.
func ols1(y, x []float64) (b, a float64) {
	mx, my := stats.Mean(x), stats.Mean(y)
	var cov, vx float64
	for i := range x {
		dx := x[i] - mx
		cov += dx * (y[i] - my)
		vx += dx * dx
	}
	if stats.Degenerate(vx) {
		return 0, my
	}
	b = cov / vx
	return b, my - b*mx
}
