// Package batch orchestrates the daily compute pipeline over date ranges:
// metrics, composite score, stress index, and alerts for each day, with
// run-log bookkeeping and resume support.
package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-macro/pulse-cli/internal/model"
)

// MetricComputer derives the day's metric basket.
type MetricComputer interface {
	ComputeDay(ctx context.Context, day time.Time) ([]model.DerivedMetric, error)
}

// ScoreComputer builds the day's composite score.
type ScoreComputer interface {
	ComputeDay(ctx context.Context, day time.Time) (*model.ScoreResult, error)
}

// StressComputer builds the day's stress index, nil when no inputs exist.
type StressComputer interface {
	ComputeDay(ctx context.Context, day time.Time) (*model.StressResult, error)
}

// AlertEvaluator runs the day's alert rules.
type AlertEvaluator interface {
	EvaluateDay(ctx context.Context, day time.Time) ([]model.Alert, error)
}

// RunStore is the slice of the store the runner writes to.
type RunStore interface {
	UpsertScore(ctx context.Context, s model.ScoreResult) error
	UpsertStress(ctx context.Context, s model.StressResult) error
	MissingScoreDays(ctx context.Context, from, to time.Time) ([]time.Time, error)
	StartRun(ctx context.Context, job string) (int64, error)
	CompleteRun(ctx context.Context, runID int64, daysProcessed int) error
	FailRun(ctx context.Context, runID int64, errMsg string) error
}

// DayFailure records one day that could not be computed.
type DayFailure struct {
	Day time.Time `json:"day"`
	Err string    `json:"error"`
}

// Report summarizes a range run.
type Report struct {
	Days      int          `json:"days"`
	Succeeded int          `json:"succeeded"`
	Failures  []DayFailure `json:"failures,omitempty"`
}

// Runner drives the per-day pipeline.
type Runner struct {
	store   RunStore
	metrics MetricComputer
	score   ScoreComputer
	stress  StressComputer
	alerts  AlertEvaluator
	// Days are independent given static weights: every statistic reads raw
	// canonical history, not other days' outputs. Dynamic (PCA) weighting
	// reads prior days' metrics, so it should run with parallelism 1.
	parallelism int
	log         *zap.Logger
}

func NewRunner(store RunStore, metrics MetricComputer, score ScoreComputer, stress StressComputer, alerts AlertEvaluator, parallelism int) *Runner {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Runner{
		store:       store,
		metrics:     metrics,
		score:       score,
		stress:      stress,
		alerts:      alerts,
		parallelism: parallelism,
		log:         zap.L().With(zap.String("component", "batch")),
	}
}

// RunDay executes the full pipeline for one day.
func (r *Runner) RunDay(ctx context.Context, day time.Time) error {
	day = model.DayOf(day)

	if _, err := r.metrics.ComputeDay(ctx, day); err != nil {
		return eris.Wrap(err, "batch: metrics")
	}

	sc, err := r.score.ComputeDay(ctx, day)
	if err != nil {
		return eris.Wrap(err, "batch: score")
	}
	if err := r.store.UpsertScore(ctx, *sc); err != nil {
		return eris.Wrap(err, "batch: persist score")
	}

	st, err := r.stress.ComputeDay(ctx, day)
	if err != nil {
		return eris.Wrap(err, "batch: stress")
	}
	if st != nil {
		if err := r.store.UpsertStress(ctx, *st); err != nil {
			return eris.Wrap(err, "batch: persist stress")
		}
	}

	if _, err := r.alerts.EvaluateDay(ctx, day); err != nil {
		return eris.Wrap(err, "batch: alerts")
	}
	return nil
}

// RunRange computes every day in [from, to] inclusive. A failed day is
// recorded and the rest of the range continues; the run only errors on
// invalid input or run-log failures.
func (r *Runner) RunRange(ctx context.Context, from, to time.Time) (*Report, error) {
	from, to = model.DayOf(from), model.DayOf(to)
	if from.After(to) {
		return nil, eris.Errorf("batch: range start %s is after end %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return r.runDays(ctx, "compute-range", days)
}

// Resume computes only the days in [from, to] that have observations but no
// score yet, picking up where an interrupted range run stopped.
func (r *Runner) Resume(ctx context.Context, from, to time.Time) (*Report, error) {
	from, to = model.DayOf(from), model.DayOf(to)
	if from.After(to) {
		return nil, eris.Errorf("batch: range start %s is after end %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	days, err := r.store.MissingScoreDays(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		r.log.Info("nothing to resume", zap.Time("from", from), zap.Time("to", to))
		return &Report{}, nil
	}
	return r.runDays(ctx, "compute-resume", days)
}

func (r *Runner) runDays(ctx context.Context, job string, days []time.Time) (*Report, error) {
	runID, err := r.store.StartRun(ctx, job)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	report := &Report{Days: len(days)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, day := range days {
		g.Go(func() error {
			if err := r.RunDay(gctx, day); err != nil {
				r.log.Error("day failed", zap.Time("day", day), zap.Error(err))
				mu.Lock()
				report.Failures = append(report.Failures, DayFailure{Day: day, Err: err.Error()})
				mu.Unlock()
				return nil // one bad day must not cancel the range
			}
			mu.Lock()
			report.Succeeded++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if failErr := r.store.FailRun(ctx, runID, err.Error()); failErr != nil {
			r.log.Error("run log update failed", zap.Error(failErr))
		}
		return report, err
	}

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Day.Before(report.Failures[j].Day)
	})

	if len(report.Failures) == len(days) && len(days) > 0 {
		msg := "every day in range failed"
		if err := r.store.FailRun(ctx, runID, msg); err != nil {
			return report, err
		}
		return report, eris.New("batch: " + msg)
	}
	if err := r.store.CompleteRun(ctx, runID, report.Succeeded); err != nil {
		return report, err
	}

	r.log.Info("range complete",
		zap.String("job", job),
		zap.Int("days", report.Days),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}
