package score

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/config"
	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/stats"
)

// ScoreReader is the slice of the store the stress aggregator reads from.
type ScoreReader interface {
	MetricReader
	ScoreOn(ctx context.Context, day time.Time) (*model.ScoreResult, error)
}

// transmissionKey names the composite score inside the stress weight map.
const transmissionKey = "score"

// DefaultStressWeights blends the transmission score with the liquidity,
// curve, auction, and turnover components most sensitive to funding stress.
func DefaultStressWeights() map[string]float64 {
	return map[string]float64{
		transmissionKey:  0.35,
		"interbank_3m_z": 0.20,
		"curve_2y10y_z":  0.15,
		"auction_btc_z":  0.15,
		"turnover_5d_z":  0.15,
	}
}

// StressAggregator computes the second-order stress index: each component is
// mapped onto a 0-100 percentile scale, then blended by weight. Missing
// components drop out and the remaining weights renormalize.
type StressAggregator struct {
	src     ScoreReader
	weights map[string]float64
	log     *zap.Logger
}

func NewStressAggregator(src ScoreReader, cfg config.StressConfig) *StressAggregator {
	weights := cfg.Weights
	if len(weights) == 0 {
		weights = DefaultStressWeights()
	}
	return &StressAggregator{
		src:     src,
		weights: weights,
		log:     zap.L().With(zap.String("component", "stress")),
	}
}

// ComputeDay returns (nil, nil) when every weighted component is missing for
// the day: stress with no inputs is null, not zero.
func (a *StressAggregator) ComputeDay(ctx context.Context, day time.Time) (*model.StressResult, error) {
	day = model.DayOf(day)

	type part struct {
		name       string
		weight     float64
		percentile float64
	}
	var parts []part

	for name, weight := range a.weights {
		if weight <= 0 {
			continue
		}
		if name == transmissionKey {
			sc, err := a.src.ScoreOn(ctx, day)
			if err != nil {
				return nil, err
			}
			if sc == nil || sc.Method == "bootstrap" {
				continue
			}
			parts = append(parts, part{name: name, weight: weight, percentile: sc.Score})
			continue
		}
		m, err := a.src.MetricOn(ctx, name, day)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		parts = append(parts, part{name: name, weight: weight, percentile: stats.ZToPercentile(m.Value)})
	}

	if len(parts) == 0 {
		a.log.Debug("stress null: no components", zap.Time("day", day))
		return nil, nil
	}

	var weightSum float64
	for _, p := range parts {
		weightSum += p.weight
	}

	var index float64
	drivers := make([]model.Driver, 0, len(parts))
	for _, p := range parts {
		w := p.weight / weightSum
		index += w * p.percentile
		// Attribution ranks by pull away from the neutral 50th percentile,
		// not by raw weighted level: a component sitting exactly at neutral
		// drives nothing, whatever its weight.
		deviation := w * (p.percentile - 50)
		direction := "easing"
		if p.percentile >= 50 {
			direction = "tightening"
		}
		drivers = append(drivers, model.Driver{
			Component:    p.name,
			SignedZ:      p.percentile,
			Weight:       w,
			Contribution: deviation,
			Direction:    direction,
		})
	}
	sort.Slice(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].Contribution) > math.Abs(drivers[j].Contribution)
	})
	if len(drivers) > maxDrivers {
		drivers = drivers[:maxDrivers]
	}

	return &model.StressResult{
		Day:     day,
		Index:   index,
		Bucket:  model.StressBucket(index),
		Drivers: drivers,
	}, nil
}
