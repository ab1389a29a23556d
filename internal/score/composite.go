package score

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/config"
	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/stats"
)

// bootstrapScore is reported when too few components are usable to say
// anything. The method field carries "bootstrap" so readers can tell it
// apart from a genuinely neutral day.
const bootstrapScore = 50.0

// maxDrivers caps how many attribution entries a persisted result carries.
const maxDrivers = 3

// MetricReader is the slice of the store the scorer reads from.
type MetricReader interface {
	MetricOn(ctx context.Context, metric string, day time.Time) (*model.DerivedMetric, error)
}

// Scorer computes the daily composite transmission score.
type Scorer struct {
	metrics MetricReader
	static  WeightFitter
	dynamic WeightFitter // optional, tried first when set
	basket  []Component
	cfg     config.ScoreConfig
	log     *zap.Logger
}

func NewScorer(metrics MetricReader, cfg config.ScoreConfig, basket []Component, dynamic WeightFitter) *Scorer {
	if len(basket) == 0 {
		basket = DefaultBasket()
	}
	return &Scorer{
		metrics: metrics,
		static:  NewStaticWeights(cfg.Weights, basket),
		dynamic: dynamic,
		basket:  basket,
		cfg:     cfg,
		log:     zap.L().With(zap.String("component", "score")),
	}
}

// ComputeDay builds the composite score for one day. Components whose metric
// is null for the day are excluded and the remaining weights renormalized.
// Fewer than MinComponents usable yields the bootstrap result.
func (s *Scorer) ComputeDay(ctx context.Context, day time.Time) (*model.ScoreResult, error) {
	day = model.DayOf(day)

	weights, scheme, err := s.weightsFor(ctx, day)
	if err != nil {
		return nil, err
	}

	type loaded struct {
		comp    Component
		scaledZ float64
	}
	var present []loaded
	for _, c := range s.basket {
		m, err := s.metrics.MetricOn(ctx, c.Metric, day)
		if err != nil {
			return nil, eris.Wrapf(err, "score: load %s", c.Metric)
		}
		if m == nil {
			continue
		}
		signed := c.Sign * m.Value
		// Tightening bites harder than easing relieves, so positive and
		// negative deviations scale separately.
		if signed >= 0 {
			signed *= s.cfg.PosScale
		} else {
			signed *= s.cfg.NegScale
		}
		// Metric z-scores arrive pre-capped, but a scale above 1 can push
		// them back out of range.
		signed = stats.Winsorize(signed, s.cfg.ZCap)
		present = append(present, loaded{comp: c, scaledZ: signed})
	}

	if len(present) < s.cfg.MinComponents {
		s.log.Info("bootstrap score: too few components",
			zap.Time("day", day),
			zap.Int("usable", len(present)),
			zap.Int("required", s.cfg.MinComponents))
		return &model.ScoreResult{
			Day:    day,
			Score:  bootstrapScore,
			Bucket: model.ScoreBucket(bootstrapScore),
			Method: "bootstrap",
		}, nil
	}

	var weightSum float64
	for _, p := range present {
		weightSum += weights[p.comp.Metric]
	}
	if weightSum <= 0 {
		return nil, eris.New("score: zero total weight over present components")
	}

	var avg float64
	drivers := make([]model.Driver, 0, len(present))
	for _, p := range present {
		w := weights[p.comp.Metric] / weightSum
		contribution := w * p.scaledZ
		avg += contribution
		direction := "tightening"
		if contribution < 0 {
			direction = "easing"
		}
		drivers = append(drivers, model.Driver{
			Component:    p.comp.Metric,
			SignedZ:      p.scaledZ,
			Weight:       w,
			Contribution: contribution,
			Direction:    direction,
		})
	}
	sort.Slice(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].Contribution) > math.Abs(drivers[j].Contribution)
	})
	if len(drivers) > maxDrivers {
		drivers = drivers[:maxDrivers]
	}

	var value float64
	switch s.cfg.Mapping {
	case "logistic":
		// Slope matched to the linear mapping at the neutral point.
		value = 100 / (1 + math.Exp(-avg*s.cfg.Gain/25))
	default:
		value = 50 + s.cfg.Gain*avg
	}
	value = clamp(value, 0, 100)

	return &model.ScoreResult{
		Day:     day,
		Score:   value,
		Bucket:  model.ScoreBucket(value),
		Drivers: drivers,
		Method:  s.cfg.Mapping + "/" + scheme,
	}, nil
}

func (s *Scorer) weightsFor(ctx context.Context, day time.Time) (map[string]float64, string, error) {
	if s.cfg.DynamicWeight && s.dynamic != nil {
		w, err := s.dynamic.Fit(ctx, day)
		if err == nil {
			return w, s.dynamic.Name(), nil
		}
		if !eris.Is(err, ErrUnavailable) {
			return nil, "", err
		}
		s.log.Debug("dynamic weights unavailable, using static",
			zap.Time("day", day), zap.String("fitter", s.dynamic.Name()))
	}
	w, err := s.static.Fit(ctx, day)
	if err != nil {
		return nil, "", err
	}
	return w, s.static.Name(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
