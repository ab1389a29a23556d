// Package ingest loads observation files from upstream sources into the raw
// store. Files are CSV or JSON; each row is one (series, day, value) fact.
// Ingestion is idempotent: re-running a file refreshes existing rows.
package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/model"
)

// Recorder is the slice of the store the loader needs.
type Recorder interface {
	UpsertSource(ctx context.Context, url string, priority int) (*model.Source, error)
	RecordObservation(ctx context.Context, obs model.Observation) (bool, error)
}

// Row is one observation line in an ingest file. Day uses YYYY-MM-DD.
type Row struct {
	Series   string   `csv:"series" json:"series"`
	Day      string   `csv:"day" json:"day"`
	Value    float64  `csv:"value" json:"value"`
	AuxValue *float64 `csv:"aux_value,omitempty" json:"aux_value,omitempty"`
	Warn     string   `csv:"warn,omitempty" json:"warn,omitempty"`
}

// Summary reports what one ingest pass did.
type Summary struct {
	SourceURL string `json:"source_url"`
	Inserted  int    `json:"inserted"`
	Refreshed int    `json:"refreshed"`
	Skipped   int    `json:"skipped"`
}

// Loader parses observation files and writes them through a Recorder.
type Loader struct {
	rec             Recorder
	defaultPriority int
	log             *zap.Logger
}

func NewLoader(rec Recorder, defaultPriority int) *Loader {
	if defaultPriority <= 0 {
		defaultPriority = 100
	}
	return &Loader{
		rec:             rec,
		defaultPriority: defaultPriority,
		log:             zap.L().With(zap.String("component", "ingest")),
	}
}

// ParseFile decodes an observation file without writing anything. The format
// is inferred from the extension: .json decodes a JSON array, everything
// else is CSV.
func ParseFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	var rows []Row
	if strings.EqualFold(filepath.Ext(path), ".json") {
		rows, err = decodeJSON(f)
	} else {
		rows, err = decodeCSV(f)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: decode %s", path)
	}
	return rows, nil
}

// LoadFile ingests one file attributed to sourceURL.
func (l *Loader) LoadFile(ctx context.Context, path, sourceURL string) (*Summary, error) {
	rows, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, sourceURL, rows)
}

// Observations converts rows for a bulk import, dropping invalid ones. It
// returns the valid observations and the number skipped.
func Observations(rows []Row, sourceID int64, fetchedAt time.Time) ([]model.Observation, int) {
	out := make([]model.Observation, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		obs, err := row.toObservation(sourceID, fetchedAt)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, obs)
	}
	return out, skipped
}

// Load registers the source and records every valid row. Rows that fail
// validation are skipped and logged, not fatal: one bad line must not block a
// day's feed.
func (l *Loader) Load(ctx context.Context, sourceURL string, rows []Row) (*Summary, error) {
	if sourceURL == "" {
		return nil, eris.New("ingest: source URL is required")
	}
	src, err := l.rec.UpsertSource(ctx, sourceURL, l.defaultPriority)
	if err != nil {
		return nil, err
	}

	summary := &Summary{SourceURL: sourceURL}
	now := time.Now().UTC()
	for i, row := range rows {
		obs, err := row.toObservation(src.ID, now)
		if err != nil {
			summary.Skipped++
			l.log.Warn("skipping row",
				zap.String("source", sourceURL),
				zap.Int("line", i+1),
				zap.Error(err))
			continue
		}
		inserted, err := l.rec.RecordObservation(ctx, obs)
		if err != nil {
			return summary, eris.Wrapf(err, "ingest: record row %d", i+1)
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Refreshed++
		}
	}

	l.log.Info("ingest complete",
		zap.String("source", sourceURL),
		zap.Int("inserted", summary.Inserted),
		zap.Int("refreshed", summary.Refreshed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (r Row) toObservation(sourceID int64, fetchedAt time.Time) (model.Observation, error) {
	if r.Series == "" {
		return model.Observation{}, eris.New("empty series")
	}
	day, err := time.Parse("2006-01-02", r.Day)
	if err != nil {
		return model.Observation{}, eris.Wrapf(err, "bad day %q", r.Day)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return model.Observation{}, eris.Errorf("non-finite value for %s on %s", r.Series, r.Day)
	}
	if r.AuxValue != nil && (math.IsNaN(*r.AuxValue) || math.IsInf(*r.AuxValue, 0)) {
		return model.Observation{}, eris.Errorf("non-finite aux value for %s on %s", r.Series, r.Day)
	}
	return model.Observation{
		Series:    r.Series,
		SourceID:  sourceID,
		Day:       model.DayOf(day),
		Value:     r.Value,
		AuxValue:  r.AuxValue,
		Warn:      r.Warn,
		FetchedAt: fetchedAt,
	}, nil
}

func decodeCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrap(err, "csv header")
	}
	var rows []Row
	for {
		var row Row
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "csv row")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeJSON(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, eris.Wrap(err, "json array")
	}
	return rows, nil
}
