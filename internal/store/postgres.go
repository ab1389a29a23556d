package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-macro/pulse-cli/internal/db"
	"github.com/meridian-macro/pulse-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// canonicalRank orders raw rows within one (series, day) group. Source
// priority wins, then fetch recency, then the raw row id as the final
// tiebreak (most recent insert).
const canonicalRank = `ROW_NUMBER() OVER (PARTITION BY o.obs_day ORDER BY s.priority ASC, o.fetched_at DESC, o.id DESC)`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	url          TEXT NOT NULL UNIQUE,
	priority     INTEGER NOT NULL DEFAULT 100,
	last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	series     TEXT NOT NULL,
	source_id  BIGINT NOT NULL REFERENCES sources(id),
	obs_day    DATE NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	aux_value  DOUBLE PRECISION,
	warn       TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (series, source_id, obs_day)
);

-- Day-level lookup index. source_id must stay the final column: canonical
-- ranking resolves all sources inside one (series, obs_day) group.
CREATE INDEX IF NOT EXISTS idx_observations_series_day_source
	ON observations(series, obs_day, source_id);

CREATE TABLE IF NOT EXISTS derived_metrics (
	obs_day  DATE NOT NULL,
	metric   TEXT NOT NULL,
	value    DOUBLE PRECISION NOT NULL,
	window_n INTEGER NOT NULL,
	sample_n INTEGER NOT NULL,
	method   TEXT NOT NULL,
	PRIMARY KEY (obs_day, metric)
);

CREATE TABLE IF NOT EXISTS scores (
	obs_day DATE PRIMARY KEY,
	score   DOUBLE PRECISION NOT NULL,
	bucket  TEXT NOT NULL,
	drivers JSONB,
	method  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stress_index (
	obs_day     DATE PRIMARY KEY,
	index_value DOUBLE PRECISION NOT NULL,
	bucket      TEXT NOT NULL,
	drivers     JSONB
);

CREATE TABLE IF NOT EXISTS alert_thresholds (
	code       TEXT PRIMARY KEY,
	enabled    BOOLEAN NOT NULL DEFAULT true,
	severity   TEXT NOT NULL,
	params     JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	obs_day      DATE NOT NULL,
	code         TEXT NOT NULL,
	severity     TEXT NOT NULL,
	message      TEXT NOT NULL,
	metric_value DOUBLE PRECISION NOT NULL,
	threshold    DOUBLE PRECISION NOT NULL,
	evidence     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_alerts_day_code ON alerts(obs_day, code);

CREATE TABLE IF NOT EXISTS run_log (
	id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	job            TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at   TIMESTAMPTZ,
	days_processed INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT ''
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Sources

func (s *PostgresStore) UpsertSource(ctx context.Context, url string, priority int) (*model.Source, error) {
	var src model.Source
	// Insert-if-absent: an existing row keeps its priority (it may have been
	// manually overridden), only last_seen_at is refreshed.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sources (url, priority, last_seen_at) VALUES ($1, $2, now())
		 ON CONFLICT (url) DO UPDATE SET last_seen_at = now()
		 RETURNING id, url, priority, last_seen_at`,
		url, priority,
	).Scan(&src.ID, &src.URL, &src.Priority, &src.LastSeenAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert source %s", url)
	}
	return &src, nil
}

func (s *PostgresStore) SeedSources(ctx context.Context, seeds []model.Source) (int, error) {
	inserted := 0
	for _, seed := range seeds {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO sources (url, priority) VALUES ($1, $2)
			 ON CONFLICT (url) DO NOTHING`,
			seed.URL, seed.Priority,
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "postgres: seed source %s", seed.URL)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, priority, last_seen_at FROM sources ORDER BY priority, url`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.URL, &src.Priority, &src.LastSeenAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) SetSourcePriority(ctx context.Context, id int64, priority int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET priority = $1 WHERE id = $2`,
		priority, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set source priority %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %d", id)
	}
	return nil
}

// Raw observations

func (s *PostgresStore) RecordObservation(ctx context.Context, obs model.Observation) (bool, error) {
	// xmax = 0 distinguishes a fresh insert from a conflict-update.
	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO observations (series, source_id, obs_day, value, aux_value, warn, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (series, source_id, obs_day) DO UPDATE
		 SET value = $4, aux_value = $5, warn = $6, fetched_at = $7
		 RETURNING (xmax = 0)`,
		obs.Series, obs.SourceID, model.DayOf(obs.Day), obs.Value, obs.AuxValue, obs.Warn, obs.FetchedAt,
	).Scan(&inserted)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: record observation %s/%d", obs.Series, obs.SourceID)
	}
	return inserted, nil
}

// observationColumns orders the insertable columns for bulk imports.
var observationColumns = []string{"series", "source_id", "obs_day", "value", "aux_value", "warn", "fetched_at"}

func (s *PostgresStore) ImportObservations(ctx context.Context, obs []model.Observation) (int64, error) {
	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = []any{o.Series, o.SourceID, model.DayOf(o.Day), o.Value, o.AuxValue, o.Warn, o.FetchedAt}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "observations",
		Columns:      observationColumns,
		ConflictKeys: []string{"series", "source_id", "obs_day"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import observations")
}

// Canonical view

const canonicalSelect = `
SELECT series, obs_day, value, aux_value, source_id, source_url, priority, fetched_at, raw_id FROM (
	SELECT o.series, o.obs_day, o.value, o.aux_value, o.source_id,
	       s.url AS source_url, s.priority, o.fetched_at, o.id AS raw_id,
	       %RANK% AS rn
	FROM observations o
	JOIN sources s ON s.id = o.source_id
	WHERE %WHERE%
) ranked
WHERE rn = 1
`

func canonicalQuery(where, tail string) string {
	q := strings.Replace(canonicalSelect, "%RANK%", canonicalRank, 1)
	q = strings.Replace(q, "%WHERE%", where, 1)
	return q + tail
}

func (s *PostgresStore) CanonicalRange(ctx context.Context, series string, from, to time.Time) ([]model.CanonicalObservation, error) {
	query := canonicalQuery(`o.series = $1 AND o.obs_day BETWEEN $2 AND $3`, `ORDER BY obs_day`)
	rows, err := s.pool.Query(ctx, query, series, model.DayOf(from), model.DayOf(to))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: canonical range %s", series)
	}
	defer rows.Close()
	return scanCanonicalRows(rows)
}

func (s *PostgresStore) CanonicalOn(ctx context.Context, series string, day time.Time) (*model.CanonicalObservation, error) {
	query := canonicalQuery(`o.series = $1 AND o.obs_day = $2`, `LIMIT 1`)
	row := s.pool.QueryRow(ctx, query, series, model.DayOf(day))
	var co model.CanonicalObservation
	if err := scanCanonical(row, &co); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: canonical on %s", series)
	}
	return &co, nil
}

func (s *PostgresStore) CanonicalBefore(ctx context.Context, series string, day time.Time, limit int) ([]model.CanonicalObservation, error) {
	// Strictly before: the leakage guard for every derived statistic.
	query := canonicalQuery(`o.series = $1 AND o.obs_day < $2`, `ORDER BY obs_day DESC LIMIT $3`)
	rows, err := s.pool.Query(ctx, query, series, model.DayOf(day), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: canonical before %s", series)
	}
	defer rows.Close()
	return scanCanonicalRows(rows)
}

func (s *PostgresStore) LatestCanonical(ctx context.Context, series string) (*model.CanonicalObservation, error) {
	query := canonicalQuery(`o.series = $1`, `ORDER BY obs_day DESC LIMIT 1`)
	row := s.pool.QueryRow(ctx, query, series)
	var co model.CanonicalObservation
	if err := scanCanonical(row, &co); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest canonical %s", series)
	}
	return &co, nil
}

func (s *PostgresStore) ListSeries(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT series FROM observations ORDER BY series`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list series")
	}
	defer rows.Close()

	var series []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan series")
		}
		series = append(series, name)
	}
	return series, eris.Wrap(rows.Err(), "postgres: list series iterate")
}

func scanCanonicalRows(rows pgx.Rows) ([]model.CanonicalObservation, error) {
	var result []model.CanonicalObservation
	for rows.Next() {
		var co model.CanonicalObservation
		if err := scanCanonical(rows, &co); err != nil {
			return nil, eris.Wrap(err, "postgres: scan canonical row")
		}
		result = append(result, co)
	}
	return result, eris.Wrap(rows.Err(), "postgres: iterate canonical rows")
}

func scanCanonical(row pgx.Row, co *model.CanonicalObservation) error {
	return row.Scan(&co.Series, &co.Day, &co.Value, &co.AuxValue,
		&co.SourceID, &co.SourceURL, &co.Priority, &co.FetchedAt, &co.RawID)
}

// Derived metrics

func (s *PostgresStore) UpsertMetric(ctx context.Context, m model.DerivedMetric) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO derived_metrics (obs_day, metric, value, window_n, sample_n, method)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (obs_day, metric) DO UPDATE
		 SET value = $3, window_n = $4, sample_n = $5, method = $6`,
		model.DayOf(m.Day), m.Metric, m.Value, m.WindowN, m.SampleN, string(m.Method),
	)
	return eris.Wrapf(err, "postgres: upsert metric %s", m.Metric)
}

func (s *PostgresStore) MetricOn(ctx context.Context, metric string, day time.Time) (*model.DerivedMetric, error) {
	var m model.DerivedMetric
	var method string
	err := s.pool.QueryRow(ctx,
		`SELECT obs_day, metric, value, window_n, sample_n, method
		 FROM derived_metrics WHERE metric = $1 AND obs_day = $2`,
		metric, model.DayOf(day),
	).Scan(&m.Day, &m.Metric, &m.Value, &m.WindowN, &m.SampleN, &method)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: metric on %s", metric)
	}
	m.Method = model.MetricMethod(method)
	return &m, nil
}

func (s *PostgresStore) MetricRange(ctx context.Context, metric string, from, to time.Time) ([]model.DerivedMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT obs_day, metric, value, window_n, sample_n, method
		 FROM derived_metrics WHERE metric = $1 AND obs_day BETWEEN $2 AND $3
		 ORDER BY obs_day`,
		metric, model.DayOf(from), model.DayOf(to),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: metric range %s", metric)
	}
	defer rows.Close()

	var metrics []model.DerivedMetric
	for rows.Next() {
		var m model.DerivedMetric
		var method string
		if err := rows.Scan(&m.Day, &m.Metric, &m.Value, &m.WindowN, &m.SampleN, &method); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		m.Method = model.MetricMethod(method)
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "postgres: metric range iterate")
}

// Scores and stress

func (s *PostgresStore) UpsertScore(ctx context.Context, sc model.ScoreResult) error {
	driversJSON, err := json.Marshal(sc.Drivers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal drivers")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scores (obs_day, score, bucket, drivers, method)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (obs_day) DO UPDATE
		 SET score = $2, bucket = $3, drivers = $4, method = $5`,
		model.DayOf(sc.Day), sc.Score, sc.Bucket, driversJSON, sc.Method,
	)
	return eris.Wrap(err, "postgres: upsert score")
}

func (s *PostgresStore) ScoreOn(ctx context.Context, day time.Time) (*model.ScoreResult, error) {
	var sc model.ScoreResult
	var driversJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT obs_day, score, bucket, drivers, method FROM scores WHERE obs_day = $1`,
		model.DayOf(day),
	).Scan(&sc.Day, &sc.Score, &sc.Bucket, &driversJSON, &sc.Method)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: score on day")
	}
	if len(driversJSON) > 0 {
		if err := json.Unmarshal(driversJSON, &sc.Drivers); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal drivers")
		}
	}
	return &sc, nil
}

func (s *PostgresStore) MissingScoreDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT o.obs_day FROM observations o
		 WHERE o.obs_day BETWEEN $1 AND $2
		   AND NOT EXISTS (SELECT 1 FROM scores sc WHERE sc.obs_day = o.obs_day)
		 ORDER BY o.obs_day`,
		model.DayOf(from), model.DayOf(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: missing score days")
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan missing day")
		}
		days = append(days, d)
	}
	return days, eris.Wrap(rows.Err(), "postgres: missing score days iterate")
}

func (s *PostgresStore) UpsertStress(ctx context.Context, st model.StressResult) error {
	driversJSON, err := json.Marshal(st.Drivers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stress drivers")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO stress_index (obs_day, index_value, bucket, drivers)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (obs_day) DO UPDATE
		 SET index_value = $2, bucket = $3, drivers = $4`,
		model.DayOf(st.Day), st.Index, st.Bucket, driversJSON,
	)
	return eris.Wrap(err, "postgres: upsert stress")
}

func (s *PostgresStore) StressOn(ctx context.Context, day time.Time) (*model.StressResult, error) {
	var st model.StressResult
	var driversJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT obs_day, index_value, bucket, drivers FROM stress_index WHERE obs_day = $1`,
		model.DayOf(day),
	).Scan(&st.Day, &st.Index, &st.Bucket, &driversJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: stress on day")
	}
	if len(driversJSON) > 0 {
		if err := json.Unmarshal(driversJSON, &st.Drivers); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stress drivers")
		}
	}
	return &st, nil
}

// Alert thresholds

func (s *PostgresStore) SeedThresholds(ctx context.Context, defaults []model.ThresholdConfig) (int, error) {
	inserted := 0
	for _, cfg := range defaults {
		params, err := json.Marshal(cfg.Params)
		if err != nil {
			return inserted, eris.Wrapf(err, "postgres: marshal params for %s", cfg.Code)
		}
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO alert_thresholds (code, enabled, severity, params)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (code) DO NOTHING`,
			cfg.Code, cfg.Enabled, string(cfg.Severity), params,
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "postgres: seed threshold %s", cfg.Code)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) ListThresholds(ctx context.Context) ([]model.ThresholdConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, enabled, severity, params, updated_at FROM alert_thresholds ORDER BY code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list thresholds")
	}
	defer rows.Close()

	var configs []model.ThresholdConfig
	for rows.Next() {
		var cfg model.ThresholdConfig
		var severity string
		var params []byte
		if err := rows.Scan(&cfg.Code, &cfg.Enabled, &severity, &params, &cfg.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan threshold")
		}
		cfg.Severity = model.Severity(severity)
		if len(params) > 0 {
			if err := json.Unmarshal(params, &cfg.Params); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal params for %s", cfg.Code)
			}
		}
		configs = append(configs, cfg)
	}
	return configs, eris.Wrap(rows.Err(), "postgres: list thresholds iterate")
}

func (s *PostgresStore) SetThreshold(ctx context.Context, cfg model.ThresholdConfig) error {
	params, err := json.Marshal(cfg.Params)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal params for %s", cfg.Code)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO alert_thresholds (code, enabled, severity, params, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (code) DO UPDATE
		 SET enabled = $2, severity = $3, params = $4, updated_at = now()`,
		cfg.Code, cfg.Enabled, string(cfg.Severity), params,
	)
	return eris.Wrapf(err, "postgres: set threshold %s", cfg.Code)
}

// Alerts

func (s *PostgresStore) ReplaceAlerts(ctx context.Context, day time.Time, codes []string, alerts []model.Alert) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace alerts begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM alerts WHERE obs_day = $1 AND code = ANY($2)`,
		model.DayOf(day), codes,
	); err != nil {
		return eris.Wrap(err, "postgres: delete stale alerts")
	}

	for _, a := range alerts {
		evidence, err := json.Marshal(a.Evidence)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal evidence for %s", a.Code)
		}
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO alerts (id, obs_day, code, severity, message, metric_value, threshold, evidence, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, model.DayOf(a.Day), a.Code, string(a.Severity), a.Message,
			a.MetricValue, a.Threshold, evidence, a.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert alert %s", a.Code)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: replace alerts commit")
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, obs_day, code, severity, message, metric_value, threshold, evidence, created_at
	          FROM alerts WHERE obs_day BETWEEN $1 AND $2`
	args := []any{model.DayOf(filter.From), model.DayOf(filter.To)}
	argIdx := 3

	if filter.Code != "" {
		query += fmt.Sprintf(` AND code = $%d`, argIdx)
		args = append(args, filter.Code)
		argIdx++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(` AND severity = $%d`, argIdx)
		args = append(args, string(filter.Severity))
		argIdx++
	}
	query += ` ORDER BY obs_day DESC, severity DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var severity string
		var evidence []byte
		if err := rows.Scan(&a.ID, &a.Day, &a.Code, &severity, &a.Message,
			&a.MetricValue, &a.Threshold, &evidence, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.Severity = model.Severity(severity)
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal evidence for %s", a.Code)
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}

// Run log

func (s *PostgresStore) StartRun(ctx context.Context, job string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO run_log (job, status, started_at) VALUES ($1, 'running', now()) RETURNING id`,
		job,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: start run %s", job)
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID int64, daysProcessed int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE run_log SET status = 'complete', completed_at = now(), days_processed = $1 WHERE id = $2`,
		daysProcessed, runID,
	)
	return eris.Wrapf(err, "postgres: complete run %d", runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE run_log SET status = 'failed', completed_at = now(), error = $1 WHERE id = $2`,
		errMsg, runID,
	)
	return eris.Wrapf(err, "postgres: fail run %d", runID)
}
