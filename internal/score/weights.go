// Package score combines derived metrics into the daily transmission score
// and its second-order stress index.
package score

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/stats"
)

// Component binds a derived metric into the composite basket. Sign orients
// the metric so that positive always means tightening: a falling bid-to-cover
// tightens, so auction carries -1.
type Component struct {
	Metric string
	Sign   float64
}

// DefaultBasket is the standard five-component transmission basket.
func DefaultBasket() []Component {
	return []Component{
		{Metric: "interbank_3m_z", Sign: +1},
		{Metric: "curve_2y10y_z", Sign: -1},
		{Metric: "auction_btc_z", Sign: -1},
		{Metric: "turnover_z", Sign: -1},
		{Metric: "deposit_12m_z", Sign: +1},
	}
}

// ErrUnavailable signals that a capability cannot produce a result for the
// requested day; callers fall back rather than fail.
var ErrUnavailable = eris.New("score: capability unavailable")

// WeightFitter produces per-component weights for a given day. Fitters that
// cannot serve a day return ErrUnavailable and the caller falls back to
// static weights.
type WeightFitter interface {
	Name() string
	Fit(ctx context.Context, day time.Time) (map[string]float64, error)
}

// StaticWeights returns a fixed weight map, defaulting to equal weights for
// any component it has no entry for.
type StaticWeights struct {
	weights map[string]float64
	basket  []Component
}

func NewStaticWeights(weights map[string]float64, basket []Component) *StaticWeights {
	return &StaticWeights{weights: weights, basket: basket}
}

func (s *StaticWeights) Name() string { return "static" }

func (s *StaticWeights) Fit(_ context.Context, _ time.Time) (map[string]float64, error) {
	out := make(map[string]float64, len(s.basket))
	equal := 1.0 / float64(len(s.basket))
	for _, c := range s.basket {
		if w, ok := s.weights[c.Metric]; ok && w > 0 {
			out[c.Metric] = w
		} else {
			out[c.Metric] = equal
		}
	}
	normalize(out)
	return out, nil
}

// MetricHistory is the slice of the store the PCA fitter reads from.
type MetricHistory interface {
	MetricRange(ctx context.Context, metric string, from, to time.Time) ([]model.DerivedMetric, error)
}

// PCAWeights derives weights from the leading principal component of the
// basket's z-score correlation matrix over a trailing window. Only days where
// every component is present enter the fit.
type PCAWeights struct {
	hist    MetricHistory
	basket  []Component
	window  int
	minRows int
	log     *zap.Logger
}

func NewPCAWeights(hist MetricHistory, basket []Component, window, minRows int) *PCAWeights {
	if window <= 0 {
		window = 120
	}
	if minRows <= 0 {
		minRows = 40
	}
	return &PCAWeights{
		hist:    hist,
		basket:  basket,
		window:  window,
		minRows: minRows,
		log:     zap.L().With(zap.String("component", "pca-weights")),
	}
}

func (p *PCAWeights) Name() string { return "pca" }

func (p *PCAWeights) Fit(ctx context.Context, day time.Time) (map[string]float64, error) {
	from := model.DayOf(day).AddDate(0, 0, -p.window)
	to := model.DayOf(day).AddDate(0, 0, -1)

	// Per-metric day->value maps over the trailing window.
	byMetric := make([]map[time.Time]float64, len(p.basket))
	for i, c := range p.basket {
		rows, err := p.hist.MetricRange(ctx, c.Metric, from, to)
		if err != nil {
			return nil, eris.Wrapf(err, "score: pca history %s", c.Metric)
		}
		m := make(map[time.Time]float64, len(rows))
		for _, r := range rows {
			m[model.DayOf(r.Day)] = r.Value
		}
		byMetric[i] = m
	}

	// Keep only days every component reported.
	var days []time.Time
	for d := range byMetric[0] {
		complete := true
		for _, m := range byMetric[1:] {
			if _, ok := m[d]; !ok {
				complete = false
				break
			}
		}
		if complete {
			days = append(days, d)
		}
	}
	if len(days) < p.minRows {
		p.log.Debug("pca fit unavailable",
			zap.Time("day", model.DayOf(day)),
			zap.Int("complete_days", len(days)),
			zap.Int("required", p.minRows))
		return nil, ErrUnavailable
	}

	cols := make([][]float64, len(p.basket))
	for i, m := range byMetric {
		col := make([]float64, len(days))
		for j, d := range days {
			col[j] = m[d]
		}
		cols[i] = col
	}

	loadings, err := stats.FirstComponentWeights(cols)
	if err != nil {
		p.log.Debug("pca fit degenerate", zap.Time("day", model.DayOf(day)), zap.Error(err))
		return nil, ErrUnavailable
	}

	out := make(map[string]float64, len(p.basket))
	for i, c := range p.basket {
		out[c.Metric] = loadings[i]
	}
	return out, nil
}

func normalize(weights map[string]float64) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if stats.Degenerate(sum) {
		return
	}
	for k, w := range weights {
		weights[k] = w / sum
	}
}
