package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridian-macro/pulse-cli/internal/alert"
	"github.com/meridian-macro/pulse-cli/internal/batch"
	"github.com/meridian-macro/pulse-cli/internal/metrics"
	"github.com/meridian-macro/pulse-cli/internal/score"
	"github.com/meridian-macro/pulse-cli/internal/store"
)

// appEnv wires the store and pipeline components for one command run.
type appEnv struct {
	store  store.Store
	runner *batch.Runner
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres", "":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	basket := score.DefaultBasket()
	engine := metrics.NewEngine(st, st, cfg.Metrics, nil)

	var dynamic score.WeightFitter
	if cfg.Score.DynamicWeight {
		dynamic = score.NewPCAWeights(st, basket, cfg.Score.PCAWindow, cfg.Score.PCAMinRows)
	}
	scorer := score.NewScorer(st, cfg.Score, basket, dynamic)
	stress := score.NewStressAggregator(st, cfg.Stress)

	alerts := alert.NewEngine(st, st, st, time.Duration(cfg.Alert.CacheTTLSecs)*time.Second)

	parallelism := cfg.Batch.MaxConcurrentDays
	if cfg.Score.DynamicWeight {
		// PCA weighting reads earlier days' metrics, so days must run in
		// order.
		parallelism = 1
	}
	runner := batch.NewRunner(st, engine, scorer, stress, alerts, parallelism)

	return &appEnv{store: st, runner: runner}, nil
}

func (e *appEnv) Close() {
	_ = e.store.Close()
}

// basketMetrics lists the derived metrics of the standard basket plus the
// fast turnover diagnostic, for exports and trend commands.
func basketMetrics() []string {
	specs := metrics.DefaultSpecs()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Metric
	}
	return names
}

func parseDayArg(arg string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", arg)
	if err != nil {
		return time.Time{}, eris.Errorf("bad day %q, expected YYYY-MM-DD", arg)
	}
	return d, nil
}
