package alert

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/model"
)

// ConfigSource loads stored rule configurations.
type ConfigSource interface {
	ListThresholds(ctx context.Context) ([]model.ThresholdConfig, error)
}

// Sink persists the day's evaluated alerts.
type Sink interface {
	ReplaceAlerts(ctx context.Context, day time.Time, codes []string, alerts []model.Alert) error
}

// configCache caches threshold configs with a TTL. A failed refresh serves
// the last-known-good snapshot; before any successful load it serves the
// built-in defaults so alerting works on a fresh database.
type configCache struct {
	src ConfigSource
	ttl time.Duration
	log *zap.Logger

	mu        sync.Mutex
	configs   map[string]model.ThresholdConfig
	fetchedAt time.Time
	loaded    bool
}

func newConfigCache(src ConfigSource, ttl time.Duration, log *zap.Logger) *configCache {
	return &configCache{src: src, ttl: ttl, log: log}
}

func (c *configCache) get(ctx context.Context) map[string]model.ThresholdConfig {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && time.Since(c.fetchedAt) < c.ttl {
		return c.configs
	}

	stored, err := c.src.ListThresholds(ctx)
	if err != nil {
		if c.loaded {
			c.log.Warn("threshold refresh failed, serving cached configs", zap.Error(err))
			return c.configs
		}
		c.log.Warn("threshold load failed, serving defaults", zap.Error(err))
		return indexConfigs(DefaultThresholds())
	}

	c.configs = indexConfigs(stored)
	c.fetchedAt = time.Now()
	c.loaded = true
	return c.configs
}

func indexConfigs(configs []model.ThresholdConfig) map[string]model.ThresholdConfig {
	m := make(map[string]model.ThresholdConfig, len(configs))
	for _, cfg := range configs {
		m[cfg.Code] = cfg
	}
	return m
}

// Engine evaluates the core rule set for a day and replaces that day's
// alert family atomically.
type Engine struct {
	reader Reader
	sink   Sink
	rules  []Rule
	cache  *configCache
	log    *zap.Logger
}

func NewEngine(reader Reader, sink Sink, src ConfigSource, cacheTTL time.Duration) *Engine {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	log := zap.L().With(zap.String("component", "alert"))
	return &Engine{
		reader: reader,
		sink:   sink,
		rules:  CoreRules(),
		cache:  newConfigCache(src, cacheTTL, log),
		log:    log,
	}
}

// EvaluateDay runs every enabled core rule for the day and persists the
// result. The full core family is replaced even when nothing fires, so rules
// that stop triggering leave no stale rows.
func (e *Engine) EvaluateDay(ctx context.Context, day time.Time) ([]model.Alert, error) {
	day = model.DayOf(day)
	configs := e.cache.get(ctx)

	codes := make([]string, 0, len(e.rules))
	var fired []model.Alert
	for _, rule := range e.rules {
		codes = append(codes, rule.Code())

		cfg, ok := configs[rule.Code()]
		if !ok {
			e.log.Warn("no stored config for rule, skipping", zap.String("code", rule.Code()))
			continue
		}
		if !cfg.Enabled {
			continue
		}
		a, err := rule.Evaluate(ctx, e.reader, day, cfg)
		if err != nil {
			return nil, eris.Wrapf(err, "alert: evaluate %s", rule.Code())
		}
		if a != nil {
			fired = append(fired, *a)
		}
	}

	if err := e.sink.ReplaceAlerts(ctx, day, codes, fired); err != nil {
		return nil, eris.Wrap(err, "alert: persist")
	}
	e.log.Info("alerts evaluated",
		zap.Time("day", day),
		zap.Int("rules", len(codes)),
		zap.Int("fired", len(fired)))
	return fired, nil
}
