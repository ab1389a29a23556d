// Package export writes score, stress, metric, and alert history to XLSX
// workbooks and CSV files for analysts working outside the API.
package export

import (
	"context"
	"os"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/store"
)

const dayFormat = "2006-01-02"

// Reader is the slice of the store exports read from.
type Reader interface {
	ScoreOn(ctx context.Context, day time.Time) (*model.ScoreResult, error)
	StressOn(ctx context.Context, day time.Time) (*model.StressResult, error)
	MetricRange(ctx context.Context, metric string, from, to time.Time) ([]model.DerivedMetric, error)
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]model.Alert, error)
}

// Exporter builds export files for a day range.
type Exporter struct {
	src     Reader
	metrics []string
	log     *zap.Logger
}

func NewExporter(src Reader, metrics []string) *Exporter {
	return &Exporter{
		src:     src,
		metrics: metrics,
		log:     zap.L().With(zap.String("component", "export")),
	}
}

// WriteWorkbook writes an XLSX workbook with Scores, Stress, Metrics, and
// Alerts sheets covering [from, to].
func (e *Exporter) WriteWorkbook(ctx context.Context, path string, from, to time.Time) error {
	from, to = model.DayOf(from), model.DayOf(to)
	if from.After(to) {
		return eris.New("export: range start is after end")
	}

	f := xlsx.NewFile()
	if err := e.addScoreSheets(ctx, f, from, to); err != nil {
		return err
	}
	if err := e.addMetricsSheet(ctx, f, from, to); err != nil {
		return err
	}
	if err := e.addAlertsSheet(ctx, f, from, to); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	e.log.Info("workbook written",
		zap.String("path", path),
		zap.Time("from", from),
		zap.Time("to", to))
	return nil
}

func (e *Exporter) addScoreSheets(ctx context.Context, f *xlsx.File, from, to time.Time) error {
	scores, err := f.AddSheet("Scores")
	if err != nil {
		return eris.Wrap(err, "export: add scores sheet")
	}
	header(scores, "day", "score", "bucket", "method", "top_driver")

	stress, err := f.AddSheet("Stress")
	if err != nil {
		return eris.Wrap(err, "export: add stress sheet")
	}
	header(stress, "day", "index", "bucket")

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		sc, err := e.src.ScoreOn(ctx, d)
		if err != nil {
			return err
		}
		if sc != nil {
			row := scores.AddRow()
			row.AddCell().SetString(sc.Day.Format(dayFormat))
			row.AddCell().SetFloat(sc.Score)
			row.AddCell().SetString(sc.Bucket)
			row.AddCell().SetString(sc.Method)
			top := ""
			if len(sc.Drivers) > 0 {
				top = sc.Drivers[0].Component
			}
			row.AddCell().SetString(top)
		}

		st, err := e.src.StressOn(ctx, d)
		if err != nil {
			return err
		}
		if st != nil {
			row := stress.AddRow()
			row.AddCell().SetString(st.Day.Format(dayFormat))
			row.AddCell().SetFloat(st.Index)
			row.AddCell().SetString(st.Bucket)
		}
	}
	return nil
}

func (e *Exporter) addMetricsSheet(ctx context.Context, f *xlsx.File, from, to time.Time) error {
	sheet, err := f.AddSheet("Metrics")
	if err != nil {
		return eris.Wrap(err, "export: add metrics sheet")
	}
	header(sheet, "day", "metric", "value", "window_n", "sample_n", "method")

	for _, metric := range e.metrics {
		rows, err := e.src.MetricRange(ctx, metric, from, to)
		if err != nil {
			return err
		}
		for _, m := range rows {
			row := sheet.AddRow()
			row.AddCell().SetString(m.Day.Format(dayFormat))
			row.AddCell().SetString(m.Metric)
			row.AddCell().SetFloat(m.Value)
			row.AddCell().SetInt(m.WindowN)
			row.AddCell().SetInt(m.SampleN)
			row.AddCell().SetString(string(m.Method))
		}
	}
	return nil
}

func (e *Exporter) addAlertsSheet(ctx context.Context, f *xlsx.File, from, to time.Time) error {
	sheet, err := f.AddSheet("Alerts")
	if err != nil {
		return eris.Wrap(err, "export: add alerts sheet")
	}
	header(sheet, "day", "code", "severity", "message", "value", "threshold")

	alerts, err := e.src.ListAlerts(ctx, store.AlertFilter{From: from, To: to})
	if err != nil {
		return err
	}
	for _, a := range alerts {
		row := sheet.AddRow()
		row.AddCell().SetString(a.Day.Format(dayFormat))
		row.AddCell().SetString(a.Code)
		row.AddCell().SetString(string(a.Severity))
		row.AddCell().SetString(a.Message)
		row.AddCell().SetFloat(a.MetricValue)
		row.AddCell().SetFloat(a.Threshold)
	}
	return nil
}

func header(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, n := range names {
		row.AddCell().SetString(n)
	}
}

// scoreCSVRow is the flattened CSV shape of one day's score.
type scoreCSVRow struct {
	Day    string  `csv:"day"`
	Score  float64 `csv:"score"`
	Bucket string  `csv:"bucket"`
	Method string  `csv:"method"`
}

// WriteScoresCSV writes the range's scores as CSV, skipping days without one.
func (e *Exporter) WriteScoresCSV(ctx context.Context, path string, from, to time.Time) error {
	from, to = model.DayOf(from), model.DayOf(to)
	if from.After(to) {
		return eris.New("export: range start is after end")
	}

	var rows []scoreCSVRow
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		sc, err := e.src.ScoreOn(ctx, d)
		if err != nil {
			return err
		}
		if sc == nil {
			continue
		}
		rows = append(rows, scoreCSVRow{
			Day:    sc.Day.Format(dayFormat),
			Score:  sc.Score,
			Bucket: sc.Bucket,
			Method: sc.Method,
		})
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "export: marshal csv")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
