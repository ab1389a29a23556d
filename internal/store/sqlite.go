package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-macro/pulse-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local and
// single-machine deployments. Postgres is the primary backend.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL UNIQUE,
	priority     INTEGER NOT NULL DEFAULT 100,
	last_seen_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS observations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	series     TEXT NOT NULL,
	source_id  INTEGER NOT NULL REFERENCES sources(id),
	obs_day    TEXT NOT NULL,
	value      REAL NOT NULL,
	aux_value  REAL,
	warn       TEXT NOT NULL DEFAULT '',
	fetched_at TEXT NOT NULL,
	UNIQUE (series, source_id, obs_day)
);

CREATE INDEX IF NOT EXISTS idx_observations_series_day_source
	ON observations(series, obs_day, source_id);

CREATE TABLE IF NOT EXISTS derived_metrics (
	obs_day  TEXT NOT NULL,
	metric   TEXT NOT NULL,
	value    REAL NOT NULL,
	window_n INTEGER NOT NULL,
	sample_n INTEGER NOT NULL,
	method   TEXT NOT NULL,
	PRIMARY KEY (obs_day, metric)
);

CREATE TABLE IF NOT EXISTS scores (
	obs_day TEXT PRIMARY KEY,
	score   REAL NOT NULL,
	bucket  TEXT NOT NULL,
	drivers TEXT,
	method  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stress_index (
	obs_day     TEXT PRIMARY KEY,
	index_value REAL NOT NULL,
	bucket      TEXT NOT NULL,
	drivers     TEXT
);

CREATE TABLE IF NOT EXISTS alert_thresholds (
	code       TEXT PRIMARY KEY,
	enabled    INTEGER NOT NULL DEFAULT 1,
	severity   TEXT NOT NULL,
	params     TEXT NOT NULL DEFAULT '{}',
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	obs_day      TEXT NOT NULL,
	code         TEXT NOT NULL,
	severity     TEXT NOT NULL,
	message      TEXT NOT NULL,
	metric_value REAL NOT NULL,
	threshold    REAL NOT NULL,
	evidence     TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_day_code ON alerts(obs_day, code);

CREATE TABLE IF NOT EXISTS run_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	job            TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	completed_at   TEXT,
	days_processed INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT ''
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const dayFormat = "2006-01-02"

func dayStr(t time.Time) string { return model.DayOf(t).Format(dayFormat) }

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse day %q", s)
	}
	return t, nil
}

func stampStr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseStamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Sources

func (s *SQLiteStore) UpsertSource(ctx context.Context, url string, priority int) (*model.Source, error) {
	now := stampStr(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (url, priority, last_seen_at) VALUES (?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		url, priority, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert source %s", url)
	}

	var src model.Source
	var seen string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, url, priority, last_seen_at FROM sources WHERE url = ?`, url,
	).Scan(&src.ID, &src.URL, &src.Priority, &seen)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read back source %s", url)
	}
	src.LastSeenAt = parseStamp(seen)
	return &src, nil
}

func (s *SQLiteStore) SeedSources(ctx context.Context, seeds []model.Source) (int, error) {
	inserted := 0
	for _, seed := range seeds {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO sources (url, priority, last_seen_at) VALUES (?, ?, ?)
			 ON CONFLICT (url) DO NOTHING`,
			seed.URL, seed.Priority, stampStr(time.Now()),
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "sqlite: seed source %s", seed.URL)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, priority, last_seen_at FROM sources ORDER BY priority, url`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var seen string
		if err := rows.Scan(&src.ID, &src.URL, &src.Priority, &seen); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		src.LastSeenAt = parseStamp(seen)
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) SetSourcePriority(ctx context.Context, id int64, priority int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET priority = ? WHERE id = ?`, priority, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set source priority %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("source not found: %d", id)
	}
	return nil
}

// Raw observations

func (s *SQLiteStore) RecordObservation(ctx context.Context, obs model.Observation) (bool, error) {
	// The engine runs single-writer batch cycles, so insert-vs-refresh can be
	// decided with a lookup before the upsert.
	var existing int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM observations WHERE series = ? AND source_id = ? AND obs_day = ?`,
		obs.Series, obs.SourceID, dayStr(obs.Day),
	).Scan(&existing)
	fresh := errors.Is(err, sql.ErrNoRows)
	if err != nil && !fresh {
		return false, eris.Wrapf(err, "sqlite: check observation %s/%d", obs.Series, obs.SourceID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO observations (series, source_id, obs_day, value, aux_value, warn, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (series, source_id, obs_day) DO UPDATE
		 SET value = excluded.value, aux_value = excluded.aux_value,
		     warn = excluded.warn, fetched_at = excluded.fetched_at`,
		obs.Series, obs.SourceID, dayStr(obs.Day), obs.Value, obs.AuxValue, obs.Warn, stampStr(obs.FetchedAt),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: record observation %s/%d", obs.Series, obs.SourceID)
	}
	return fresh, nil
}

// ImportObservations upserts in a single transaction; SQLite has no COPY
// path so the bulk import is a loop.
func (s *SQLiteStore) ImportObservations(ctx context.Context, obs []model.Observation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var written int64
	for _, o := range obs {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO observations (series, source_id, obs_day, value, aux_value, warn, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (series, source_id, obs_day) DO UPDATE
			 SET value = excluded.value, aux_value = excluded.aux_value,
			     warn = excluded.warn, fetched_at = excluded.fetched_at`,
			o.Series, o.SourceID, dayStr(o.Day), o.Value, o.AuxValue, o.Warn, stampStr(o.FetchedAt),
		)
		if err != nil {
			return written, eris.Wrapf(err, "sqlite: import observation %s", o.Series)
		}
		n, _ := res.RowsAffected()
		written += n
	}
	if err := tx.Commit(); err != nil {
		return written, eris.Wrap(err, "sqlite: import commit")
	}
	return written, nil
}

// Canonical view

const sqliteCanonicalSelect = `
SELECT series, obs_day, value, aux_value, source_id, source_url, priority, fetched_at, raw_id FROM (
	SELECT o.series, o.obs_day, o.value, o.aux_value, o.source_id,
	       s.url AS source_url, s.priority, o.fetched_at, o.id AS raw_id,
	       ROW_NUMBER() OVER (PARTITION BY o.obs_day ORDER BY s.priority ASC, o.fetched_at DESC, o.id DESC) AS rn
	FROM observations o
	JOIN sources s ON s.id = o.source_id
	WHERE %WHERE%
) ranked
WHERE rn = 1
`

func sqliteCanonicalQuery(where, tail string) string {
	return strings.Replace(sqliteCanonicalSelect, "%WHERE%", where, 1) + tail
}

func (s *SQLiteStore) CanonicalRange(ctx context.Context, series string, from, to time.Time) ([]model.CanonicalObservation, error) {
	query := sqliteCanonicalQuery(`o.series = ? AND o.obs_day BETWEEN ? AND ?`, `ORDER BY obs_day`)
	rows, err := s.db.QueryContext(ctx, query, series, dayStr(from), dayStr(to))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: canonical range %s", series)
	}
	defer rows.Close()
	return s.scanCanonicalRows(rows)
}

func (s *SQLiteStore) CanonicalOn(ctx context.Context, series string, day time.Time) (*model.CanonicalObservation, error) {
	query := sqliteCanonicalQuery(`o.series = ? AND o.obs_day = ?`, `LIMIT 1`)
	row := s.db.QueryRowContext(ctx, query, series, dayStr(day))
	co, err := s.scanCanonicalRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: canonical on %s", series)
	}
	return co, nil
}

func (s *SQLiteStore) CanonicalBefore(ctx context.Context, series string, day time.Time, limit int) ([]model.CanonicalObservation, error) {
	query := sqliteCanonicalQuery(`o.series = ? AND o.obs_day < ?`, `ORDER BY obs_day DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, series, dayStr(day), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: canonical before %s", series)
	}
	defer rows.Close()
	return s.scanCanonicalRows(rows)
}

func (s *SQLiteStore) LatestCanonical(ctx context.Context, series string) (*model.CanonicalObservation, error) {
	query := sqliteCanonicalQuery(`o.series = ?`, `ORDER BY obs_day DESC LIMIT 1`)
	row := s.db.QueryRowContext(ctx, query, series)
	co, err := s.scanCanonicalRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: latest canonical %s", series)
	}
	return co, nil
}

func (s *SQLiteStore) ListSeries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT series FROM observations ORDER BY series`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list series")
	}
	defer rows.Close()

	var series []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan series")
		}
		series = append(series, name)
	}
	return series, eris.Wrap(rows.Err(), "sqlite: list series iterate")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanCanonicalRow(row rowScanner) (*model.CanonicalObservation, error) {
	var co model.CanonicalObservation
	var day, fetched string
	if err := row.Scan(&co.Series, &day, &co.Value, &co.AuxValue,
		&co.SourceID, &co.SourceURL, &co.Priority, &fetched, &co.RawID); err != nil {
		return nil, err
	}
	d, err := parseDay(day)
	if err != nil {
		return nil, err
	}
	co.Day = d
	co.FetchedAt = parseStamp(fetched)
	return &co, nil
}

func (s *SQLiteStore) scanCanonicalRows(rows *sql.Rows) ([]model.CanonicalObservation, error) {
	var result []model.CanonicalObservation
	for rows.Next() {
		co, err := s.scanCanonicalRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan canonical row")
		}
		result = append(result, *co)
	}
	return result, eris.Wrap(rows.Err(), "sqlite: iterate canonical rows")
}

// Derived metrics

func (s *SQLiteStore) UpsertMetric(ctx context.Context, m model.DerivedMetric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO derived_metrics (obs_day, metric, value, window_n, sample_n, method)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (obs_day, metric) DO UPDATE
		 SET value = excluded.value, window_n = excluded.window_n,
		     sample_n = excluded.sample_n, method = excluded.method`,
		dayStr(m.Day), m.Metric, m.Value, m.WindowN, m.SampleN, string(m.Method),
	)
	return eris.Wrapf(err, "sqlite: upsert metric %s", m.Metric)
}

func (s *SQLiteStore) MetricOn(ctx context.Context, metric string, day time.Time) (*model.DerivedMetric, error) {
	var m model.DerivedMetric
	var d, method string
	err := s.db.QueryRowContext(ctx,
		`SELECT obs_day, metric, value, window_n, sample_n, method
		 FROM derived_metrics WHERE metric = ? AND obs_day = ?`,
		metric, dayStr(day),
	).Scan(&d, &m.Metric, &m.Value, &m.WindowN, &m.SampleN, &method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: metric on %s", metric)
	}
	day, err = parseDay(d)
	if err != nil {
		return nil, err
	}
	m.Day = day
	m.Method = model.MetricMethod(method)
	return &m, nil
}

func (s *SQLiteStore) MetricRange(ctx context.Context, metric string, from, to time.Time) ([]model.DerivedMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT obs_day, metric, value, window_n, sample_n, method
		 FROM derived_metrics WHERE metric = ? AND obs_day BETWEEN ? AND ?
		 ORDER BY obs_day`,
		metric, dayStr(from), dayStr(to),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: metric range %s", metric)
	}
	defer rows.Close()

	var metrics []model.DerivedMetric
	for rows.Next() {
		var m model.DerivedMetric
		var d, method string
		if err := rows.Scan(&d, &m.Metric, &m.Value, &m.WindowN, &m.SampleN, &method); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		day, err := parseDay(d)
		if err != nil {
			return nil, err
		}
		m.Day = day
		m.Method = model.MetricMethod(method)
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "sqlite: metric range iterate")
}

// Scores and stress

func (s *SQLiteStore) UpsertScore(ctx context.Context, sc model.ScoreResult) error {
	driversJSON, err := json.Marshal(sc.Drivers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal drivers")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scores (obs_day, score, bucket, drivers, method)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (obs_day) DO UPDATE
		 SET score = excluded.score, bucket = excluded.bucket,
		     drivers = excluded.drivers, method = excluded.method`,
		dayStr(sc.Day), sc.Score, sc.Bucket, string(driversJSON), sc.Method,
	)
	return eris.Wrap(err, "sqlite: upsert score")
}

func (s *SQLiteStore) ScoreOn(ctx context.Context, day time.Time) (*model.ScoreResult, error) {
	var sc model.ScoreResult
	var d string
	var driversJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT obs_day, score, bucket, drivers, method FROM scores WHERE obs_day = ?`,
		dayStr(day),
	).Scan(&d, &sc.Score, &sc.Bucket, &driversJSON, &sc.Method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: score on day")
	}
	parsed, err := parseDay(d)
	if err != nil {
		return nil, err
	}
	sc.Day = parsed
	if driversJSON.Valid && driversJSON.String != "" {
		if err := json.Unmarshal([]byte(driversJSON.String), &sc.Drivers); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal drivers")
		}
	}
	return &sc, nil
}

func (s *SQLiteStore) MissingScoreDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT o.obs_day FROM observations o
		 WHERE o.obs_day BETWEEN ? AND ?
		   AND NOT EXISTS (SELECT 1 FROM scores sc WHERE sc.obs_day = o.obs_day)
		 ORDER BY o.obs_day`,
		dayStr(from), dayStr(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: missing score days")
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan missing day")
		}
		day, err := parseDay(d)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, eris.Wrap(rows.Err(), "sqlite: missing score days iterate")
}

func (s *SQLiteStore) UpsertStress(ctx context.Context, st model.StressResult) error {
	driversJSON, err := json.Marshal(st.Drivers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stress drivers")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stress_index (obs_day, index_value, bucket, drivers)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (obs_day) DO UPDATE
		 SET index_value = excluded.index_value, bucket = excluded.bucket,
		     drivers = excluded.drivers`,
		dayStr(st.Day), st.Index, st.Bucket, string(driversJSON),
	)
	return eris.Wrap(err, "sqlite: upsert stress")
}

func (s *SQLiteStore) StressOn(ctx context.Context, day time.Time) (*model.StressResult, error) {
	var st model.StressResult
	var d string
	var driversJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT obs_day, index_value, bucket, drivers FROM stress_index WHERE obs_day = ?`,
		dayStr(day),
	).Scan(&d, &st.Index, &st.Bucket, &driversJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: stress on day")
	}
	parsed, err := parseDay(d)
	if err != nil {
		return nil, err
	}
	st.Day = parsed
	if driversJSON.Valid && driversJSON.String != "" {
		if err := json.Unmarshal([]byte(driversJSON.String), &st.Drivers); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stress drivers")
		}
	}
	return &st, nil
}

// Alert thresholds

func (s *SQLiteStore) SeedThresholds(ctx context.Context, defaults []model.ThresholdConfig) (int, error) {
	inserted := 0
	for _, cfg := range defaults {
		params, err := json.Marshal(cfg.Params)
		if err != nil {
			return inserted, eris.Wrapf(err, "sqlite: marshal params for %s", cfg.Code)
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO alert_thresholds (code, enabled, severity, params, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (code) DO NOTHING`,
			cfg.Code, cfg.Enabled, string(cfg.Severity), string(params), stampStr(time.Now()),
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "sqlite: seed threshold %s", cfg.Code)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}

func (s *SQLiteStore) ListThresholds(ctx context.Context) ([]model.ThresholdConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, enabled, severity, params, updated_at FROM alert_thresholds ORDER BY code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list thresholds")
	}
	defer rows.Close()

	var configs []model.ThresholdConfig
	for rows.Next() {
		var cfg model.ThresholdConfig
		var severity, params, updated string
		if err := rows.Scan(&cfg.Code, &cfg.Enabled, &severity, &params, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan threshold")
		}
		cfg.Severity = model.Severity(severity)
		cfg.UpdatedAt = parseStamp(updated)
		if params != "" {
			if err := json.Unmarshal([]byte(params), &cfg.Params); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal params for %s", cfg.Code)
			}
		}
		configs = append(configs, cfg)
	}
	return configs, eris.Wrap(rows.Err(), "sqlite: list thresholds iterate")
}

func (s *SQLiteStore) SetThreshold(ctx context.Context, cfg model.ThresholdConfig) error {
	params, err := json.Marshal(cfg.Params)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal params for %s", cfg.Code)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_thresholds (code, enabled, severity, params, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO UPDATE
		 SET enabled = excluded.enabled, severity = excluded.severity,
		     params = excluded.params, updated_at = excluded.updated_at`,
		cfg.Code, cfg.Enabled, string(cfg.Severity), string(params), stampStr(time.Now()),
	)
	return eris.Wrapf(err, "sqlite: set threshold %s", cfg.Code)
}

// Alerts

func (s *SQLiteStore) ReplaceAlerts(ctx context.Context, day time.Time, codes []string, alerts []model.Alert) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace alerts begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if len(codes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
		args := make([]any, 0, len(codes)+1)
		args = append(args, dayStr(day))
		for _, c := range codes {
			args = append(args, c)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM alerts WHERE obs_day = ? AND code IN (%s)`, placeholders),
			args...,
		); err != nil {
			return eris.Wrap(err, "sqlite: delete stale alerts")
		}
	}

	for _, a := range alerts {
		evidence, err := json.Marshal(a.Evidence)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal evidence for %s", a.Code)
		}
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alerts (id, obs_day, code, severity, message, metric_value, threshold, evidence, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, dayStr(a.Day), a.Code, string(a.Severity), a.Message,
			a.MetricValue, a.Threshold, string(evidence), stampStr(a.CreatedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert alert %s", a.Code)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: replace alerts commit")
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, obs_day, code, severity, message, metric_value, threshold, evidence, created_at
	          FROM alerts WHERE obs_day BETWEEN ? AND ?`
	args := []any{dayStr(filter.From), dayStr(filter.To)}

	if filter.Code != "" {
		query += ` AND code = ?`
		args = append(args, filter.Code)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	query += ` ORDER BY obs_day DESC, severity DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var d, severity, evidence, created string
		if err := rows.Scan(&a.ID, &d, &a.Code, &severity, &a.Message,
			&a.MetricValue, &a.Threshold, &evidence, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		day, err := parseDay(d)
		if err != nil {
			return nil, err
		}
		a.Day = day
		a.Severity = model.Severity(severity)
		a.CreatedAt = parseStamp(created)
		if evidence != "" {
			if err := json.Unmarshal([]byte(evidence), &a.Evidence); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal evidence for %s", a.Code)
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

// Run log

func (s *SQLiteStore) StartRun(ctx context.Context, job string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (job, status, started_at) VALUES (?, 'running', ?)`,
		job, stampStr(time.Now()),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start run %s", job)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: run id")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID int64, daysProcessed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = 'complete', completed_at = ?, days_processed = ? WHERE id = ?`,
		stampStr(time.Now()), daysProcessed, runID,
	)
	return eris.Wrapf(err, "sqlite: complete run %d", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = 'failed', completed_at = ?, error = ? WHERE id = ?`,
		stampStr(time.Now()), errMsg, runID,
	)
	return eris.Wrapf(err, "sqlite: fail run %d", runID)
}
