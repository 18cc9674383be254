// Package api serves the admin endpoints: health, metrics and read-only
// task inspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"taskbot/internal/domain"
	"taskbot/internal/render"
	"taskbot/internal/scheduler"
)

type TaskLister interface {
	ListTasks(ctx context.Context, chatID *int64) ([]domain.Task, error)
	CountTasks(ctx context.Context) (int, error)
}

type StatsSource interface {
	Stats() scheduler.Stats
}

type Server struct {
	tasks TaskLister
	stats StatsSource
}

func NewServer(tasks TaskLister, stats StatsSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)

	s := &Server{tasks: tasks, stats: stats}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Get("/api/tasks", s.listTasks)
	r.Post("/api/render", s.renderResponse)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	n, err := s.tasks.CountTasks(r.Context())
	if err != nil {
		http.Error(w, "storage unavailable", 500)
		return
	}
	st := s.stats.Stats()
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "taskbot_up 1\n")
	fmt.Fprintf(w, "taskbot_tasks %d\n", n)
	fmt.Fprintf(w, "taskbot_scheduler_cycles_total %d\n", st.Cycles)
	fmt.Fprintf(w, "taskbot_deliveries_total %d\n", st.Deliveries)
	fmt.Fprintf(w, "taskbot_delivery_failures_total %d\n", st.Failures)
}

type taskResp struct {
	ChatID   int64  `json:"chat_id"`
	Name     string `json:"name"`
	Question string `json:"question"`
	Interval int64  `json:"interval_minutes"`
	LastRun  string `json:"last_run"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var chatID *int64
	if v := r.URL.Query().Get("chat_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid chat_id", 400)
			return
		}
		chatID = &id
	}
	tasks, err := s.tasks.ListTasks(r.Context(), chatID)
	if err != nil {
		// Rows with unreadable timestamps are skipped; the rest are served.
		if !errors.Is(err, domain.ErrDateParse) {
			http.Error(w, "storage unavailable", 500)
			return
		}
		log.Warn().Err(err).Msg("some tasks skipped")
	}
	out := make([]taskResp, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResp{
			ChatID:   t.ChatID,
			Name:     t.Name,
			Question: t.Question,
			Interval: t.Interval,
			LastRun:  t.LastRun.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, 200, out)
}

type renderReq struct {
	Task     string `json:"task"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type renderResp struct {
	Markup string `json:"markup"`
}

func (s *Server) renderResponse(w http.ResponseWriter, r *http.Request) {
	var req renderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	writeJSON(w, 200, renderResp{Markup: render.Response(req.Task, req.Question, req.Answer)})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
