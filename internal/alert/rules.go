// Package alert evaluates threshold rules against each day's metrics and
// scores, producing fully-evidenced alerts. Rule parameters live in the
// store and are cached with a TTL so operators can retune without redeploys.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-macro/pulse-cli/internal/model"
)

// Rule codes form a closed set: a stored config whose code matches no rule
// here is logged and skipped, never guessed at.
const (
	CodeRateSpike      = "RATE_SPIKE"
	CodeCurveInversion = "CURVE_INVERSION"
	CodeWeakAuction    = "WEAK_AUCTION"
	CodeIlliquidity    = "ILLIQUIDITY"
	CodeScoreHigh      = "SCORE_HIGH"
	CodeStaleData      = "STALE_DATA"
)

// Reader is the slice of the store rules evaluate against.
type Reader interface {
	MetricOn(ctx context.Context, metric string, day time.Time) (*model.DerivedMetric, error)
	CanonicalOn(ctx context.Context, series string, day time.Time) (*model.CanonicalObservation, error)
	LatestCanonical(ctx context.Context, series string) (*model.CanonicalObservation, error)
	ScoreOn(ctx context.Context, day time.Time) (*model.ScoreResult, error)
}

// Rule is one evaluable alert rule. Evaluate returns nil when the rule does
// not fire; missing inputs never fire.
type Rule interface {
	Code() string
	Evaluate(ctx context.Context, r Reader, day time.Time, cfg model.ThresholdConfig) (*model.Alert, error)
}

// zTierRule fires on a z-score metric crossing tiered thresholds. Tiers are
// tested high to medium to low so only the highest matched tier fires.
// Direction +1 triggers on z above the tier, -1 on z below its negative.
type zTierRule struct {
	code      string
	metric    string
	direction float64
	label     string
}

func (z zTierRule) Code() string { return z.code }

func (z zTierRule) Evaluate(ctx context.Context, r Reader, day time.Time, cfg model.ThresholdConfig) (*model.Alert, error) {
	m, err := r.MetricOn(ctx, z.metric, day)
	if err != nil || m == nil {
		return nil, err
	}
	oriented := z.direction * m.Value

	tiers := []struct {
		param    string
		def      float64
		severity model.Severity
	}{
		{"z_high", 3.0, model.SeverityHigh},
		{"z_med", 2.0, model.SeverityMedium},
		{"z_low", 1.5, model.SeverityLow},
	}
	for _, tier := range tiers {
		threshold := cfg.Param(tier.param, tier.def)
		if oriented >= threshold {
			return &model.Alert{
				Day:      model.DayOf(day),
				Code:     z.code,
				Severity: tier.severity,
				Message: fmt.Sprintf("%s: %s z-score %.2f crossed %.2f",
					z.label, z.metric, m.Value, z.direction*threshold),
				MetricValue: m.Value,
				Threshold:   z.direction * threshold,
				Evidence: model.Evidence{
					Metric:    z.metric,
					Unit:      "z",
					Method:    string(m.Method),
					Value:     m.Value,
					Threshold: z.direction * threshold,
				},
				CreatedAt: time.Now().UTC(),
			}, nil
		}
	}
	return nil, nil
}

// levelRule fires when a canonical series value drops below a fixed level,
// e.g. a 2y10y spread below zero.
type levelRule struct {
	series string
	code   string
	label  string
	unit   string
}

func (l levelRule) Code() string { return l.code }

func (l levelRule) Evaluate(ctx context.Context, r Reader, day time.Time, cfg model.ThresholdConfig) (*model.Alert, error) {
	co, err := r.CanonicalOn(ctx, l.series, day)
	if err != nil || co == nil {
		return nil, err
	}
	level := cfg.Param("level", 0)
	if co.Value >= level {
		return nil, nil
	}
	return &model.Alert{
		Day:      model.DayOf(day),
		Code:     l.code,
		Severity: cfg.Severity,
		Message: fmt.Sprintf("%s: %s at %.3f is below %.3f",
			l.label, l.series, co.Value, level),
		MetricValue: co.Value,
		Threshold:   level,
		Evidence: model.Evidence{
			Metric:    l.series,
			Unit:      l.unit,
			Method:    "level",
			Value:     co.Value,
			Threshold: level,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// scoreRule fires when the day's composite score reaches min_score.
// Bootstrap scores never trigger.
type scoreRule struct{}

func (scoreRule) Code() string { return CodeScoreHigh }

func (scoreRule) Evaluate(ctx context.Context, r Reader, day time.Time, cfg model.ThresholdConfig) (*model.Alert, error) {
	sc, err := r.ScoreOn(ctx, day)
	if err != nil || sc == nil || sc.Method == "bootstrap" {
		return nil, err
	}
	minScore := cfg.Param("min_score", 80)
	if sc.Score < minScore {
		return nil, nil
	}
	return &model.Alert{
		Day:      model.DayOf(day),
		Code:     CodeScoreHigh,
		Severity: cfg.Severity,
		Message: fmt.Sprintf("composite score %.1f reached %.1f (%s)",
			sc.Score, minScore, sc.Bucket),
		MetricValue: sc.Score,
		Threshold:   minScore,
		Evidence: model.Evidence{
			Metric:    "score",
			Unit:      "index",
			Method:    sc.Method,
			Value:     sc.Score,
			Threshold: minScore,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// staleRule fires when a series' latest canonical observation is older than
// max_age_days relative to the evaluated day.
type staleRule struct {
	series string
}

func (s staleRule) Code() string { return CodeStaleData }

func (s staleRule) Evaluate(ctx context.Context, r Reader, day time.Time, cfg model.ThresholdConfig) (*model.Alert, error) {
	latest, err := r.LatestCanonical(ctx, s.series)
	if err != nil {
		return nil, err
	}
	maxAge := cfg.Param("max_age_days", 3)
	var ageDays float64
	if latest != nil {
		ageDays = model.DayOf(day).Sub(model.DayOf(latest.Day)).Hours() / 24
	} else {
		ageDays = maxAge + 1 // never observed counts as stale
	}
	if ageDays <= maxAge {
		return nil, nil
	}
	return &model.Alert{
		Day:      model.DayOf(day),
		Code:     CodeStaleData,
		Severity: cfg.Severity,
		Message: fmt.Sprintf("series %s has no canonical observation in %.0f days (limit %.0f)",
			s.series, ageDays, maxAge),
		MetricValue: ageDays,
		Threshold:   maxAge,
		Evidence: model.Evidence{
			Metric:    s.series,
			Unit:      "days",
			Method:    "staleness",
			Value:     ageDays,
			Threshold: maxAge,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CoreRules is the standard rule set evaluated every day.
func CoreRules() []Rule {
	return []Rule{
		zTierRule{code: CodeRateSpike, metric: "interbank_3m_z", direction: +1, label: "interbank rate spike"},
		zTierRule{code: CodeWeakAuction, metric: "auction_btc_z", direction: -1, label: "weak auction demand"},
		zTierRule{code: CodeIlliquidity, metric: "turnover_z", direction: -1, label: "trading volume collapse"},
		levelRule{code: CodeCurveInversion, series: "curve_2y10y", label: "yield curve inversion", unit: "pp"},
		scoreRule{},
		staleRule{series: "interbank_3m"},
	}
}

// DefaultThresholds seeds the stored configuration for every core rule.
func DefaultThresholds() []model.ThresholdConfig {
	return []model.ThresholdConfig{
		{Code: CodeRateSpike, Enabled: true, Severity: model.SeverityHigh,
			Params: map[string]float64{"z_high": 3.0, "z_med": 2.0, "z_low": 1.5}},
		{Code: CodeWeakAuction, Enabled: true, Severity: model.SeverityMedium,
			Params: map[string]float64{"z_high": 3.0, "z_med": 2.0, "z_low": 1.5}},
		{Code: CodeIlliquidity, Enabled: true, Severity: model.SeverityMedium,
			Params: map[string]float64{"z_high": 3.0, "z_med": 2.0, "z_low": 1.5}},
		{Code: CodeCurveInversion, Enabled: true, Severity: model.SeverityMedium,
			Params: map[string]float64{"level": 0}},
		{Code: CodeScoreHigh, Enabled: true, Severity: model.SeverityHigh,
			Params: map[string]float64{"min_score": 80}},
		{Code: CodeStaleData, Enabled: true, Severity: model.SeverityLow,
			Params: map[string]float64{"max_age_days": 3}},
	}
}
