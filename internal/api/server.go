// Package api exposes the scheduler, ledger, and seen store over HTTP for
// command and observability callers.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"outreachd/internal/domain"
	"outreachd/internal/ledger"
	"outreachd/internal/report"
	"outreachd/internal/scheduler"
	"outreachd/internal/seen"
)

type Server struct {
	r     *chi.Mux
	sched *scheduler.Service
	led   *ledger.Store
	seen  *seen.Store
}

func NewServer(sched *scheduler.Service, led *ledger.Store, seenStore *seen.Store, reg *prometheus.Registry) http.Handler {
	return NewServerWithDebug(sched, led, seenStore, reg, false)
}

func NewServerWithDebug(sched *scheduler.Service, led *ledger.Store, seenStore *seen.Store, reg *prometheus.Registry, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, sched: sched, led: led, seen: seenStore}

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/api/tasks", s.listTasks)
	r.Post("/api/tasks/{id}/run", s.runTask)
	r.Delete("/api/tasks/{id}", s.cancelTask)

	r.Get("/api/actions", s.recentActions)
	r.Get("/api/actions/latest", s.latestAction)
	r.Get("/api/actions/pending", s.pendingActions)

	r.Get("/api/reports/daily", s.dailyReport)
	r.Get("/api/seen/count", s.seenCount)

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sched.RunNow(r.Context(), id) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "ran"})
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sched.Cancel(id) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recentActions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	recs, err := s.led.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) latestAction(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actionType := q.Get("action_type")
	entityType := q.Get("entity_type")
	entityID := q.Get("entity_id")
	if actionType == "" || entityType == "" || entityID == "" {
		http.Error(w, "action_type, entity_type and entity_id are required", http.StatusBadRequest)
		return
	}
	rec, err := s.led.Latest(r.Context(), domain.ActionType(actionType), domain.EntityType(entityType), entityID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) pendingActions(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recs, err := s.led.Pending(r.Context(), date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) dailyReport(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rep, err := report.Build(r.Context(), s.led, s.seen, date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) seenCount(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	count, err := s.seen.Count(r.Context(), domain.EntityType(entityType))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_type": entityType, "count": count})
}

// parseDate interprets an empty value as today (UTC).
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
