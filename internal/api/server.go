// Package api serves the read-only query surface over the store: canonical
// series, metrics, scores, stress, alerts, and source/threshold listings.
// All computation happens in the batch pipeline; the API only reads.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/store"
)

// Server wraps the chi router over a Store.
type Server struct {
	st  store.Store
	log *zap.Logger
}

func NewServer(st store.Store) *Server {
	return &Server{
		st:  st,
		log: zap.L().With(zap.String("component", "api")),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/sources", s.handleSources)
		r.Get("/series", s.handleSeries)
		r.Get("/canonical/{series}", s.handleCanonical)
		r.Get("/metrics/{metric}", s.handleMetrics)
		r.Get("/score/{day}", s.handleScore)
		r.Get("/stress/{day}", s.handleStress)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/thresholds", s.handleThresholds)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports the latest score and stress across the default basket
// series, a single dashboard-friendly snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	series, err := s.st.ListSeries(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}

	var latestDay time.Time
	for _, name := range series {
		co, err := s.st.LatestCanonical(ctx, name)
		if err != nil {
			s.fail(w, err)
			return
		}
		if co != nil && co.Day.After(latestDay) {
			latestDay = co.Day
		}
	}

	out := map[string]any{"series": len(series)}
	if !latestDay.IsZero() {
		out["latest_day"] = latestDay.Format("2006-01-02")
		sc, err := s.st.ScoreOn(ctx, latestDay)
		if err != nil {
			s.fail(w, err)
			return
		}
		if sc != nil {
			out["score"] = sc
		}
		st, err := s.st.StressOn(ctx, latestDay)
		if err != nil {
			s.fail(w, err)
			return
		}
		if st != nil {
			out["stress"] = st
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.st.ListSources(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	series, err := s.st.ListSeries(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleCanonical(w http.ResponseWriter, r *http.Request) {
	series := chi.URLParam(r, "series")
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}
	rows, err := s.st.CanonicalRange(r.Context(), series, from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metric := chi.URLParam(r, "metric")
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}
	rows, err := s.st.MetricRange(r.Context(), metric, from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, chi.URLParam(r, "day"))
	if !ok {
		return
	}
	sc, err := s.st.ScoreOn(r.Context(), day)
	if err != nil {
		s.fail(w, err)
		return
	}
	if sc == nil {
		writeError(w, http.StatusNotFound, "no score for day")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleStress(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, chi.URLParam(r, "day"))
	if !ok {
		return
	}
	st, err := s.st.StressOn(r.Context(), day)
	if err != nil {
		s.fail(w, err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "no stress index for day")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}
	filter := store.AlertFilter{
		From:     from,
		To:       to,
		Code:     r.URL.Query().Get("code"),
		Severity: model.Severity(r.URL.Query().Get("severity")),
	}
	alerts, err := s.st.ListAlerts(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	configs, err := s.st.ListThresholds(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// rangeParams parses ?from=&to= with a 30-day default window ending today.
func rangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	to := model.DayOf(time.Now())
	from := to.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad from date")
			return from, to, false
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad to date")
			return from, to, false
		}
		to = d
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "from is after to")
		return from, to, false
	}
	return from, to, true
}

func dayParam(w http.ResponseWriter, raw string) (time.Time, bool) {
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad day, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
