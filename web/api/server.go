package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/maintenance"
	"github.com/hochfrequenz/lintgate/internal/observer"
	"github.com/hochfrequenz/lintgate/internal/procmgr"
	"github.com/hochfrequenz/lintgate/internal/taskmgr"
	"github.com/hochfrequenz/lintgate/internal/validation"
)

// Options wires the services exposed by the API. Runs, Engine and
// Maintenance are optional; their routes answer 503 when unset.
type Options struct {
	Addr        string
	Tasks       *taskmgr.Manager
	Runs        *procmgr.Manager
	Engine      *validation.Engine
	Observer    *observer.Observer
	Maintenance *maintenance.Scheduler
	Logger      *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	tasks       *taskmgr.Manager
	runs        *procmgr.Manager
	engine      *validation.Engine
	observer    *observer.Observer
	maintenance *maintenance.Scheduler
	logger      *slog.Logger

	addr     string
	mux      *http.ServeMux
	hub      *Hub
	upgrader websocket.Upgrader
	now      func() time.Time

	// baseCtx outlives single requests; async validations run under it
	baseCtx context.Context
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = observer.New(10 * time.Minute)
	}
	s := &Server{
		tasks:       opts.Tasks,
		runs:        opts.Runs,
		engine:      opts.Engine,
		observer:    opts.Observer,
		maintenance: opts.Maintenance,
		logger:      opts.Logger,
		addr:        opts.Addr,
		mux:         http.NewServeMux(),
		hub:         NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now:     time.Now,
		baseCtx: context.Background(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/tasks", s.listTasksHandler())
	s.mux.HandleFunc("/api/tasks/{id}", s.getTaskHandler())
	s.mux.HandleFunc("/api/tasks/{id}/cancel", s.cancelTaskHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/last", s.lastRunHandler())
	s.mux.HandleFunc("/api/runs/{id}", s.getRunHandler())
	s.mux.HandleFunc("/api/running", s.runningHandler())
	s.mux.HandleFunc("/api/validate", s.validateHandler())
	s.mux.HandleFunc("/api/maintenance", s.maintenanceHandler())
	s.mux.HandleFunc("/api/maintenance/{job}", s.runJobHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Handler exposes the route table, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the event hub feeding SSE and websocket clients
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the event hub, the runs watcher and the HTTP listener until
// ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	go s.hub.Run(ctx)

	if s.tasks != nil {
		s.tasks.SetListener(func(task *domain.AsyncTask) {
			s.Broadcast(Event{Type: "task", Data: task})
		})
		defer s.tasks.SetListener(nil)
	}

	if s.runs != nil {
		rw, err := observer.NewRunWatcher(s.runs.RunsDir(), s.onRunChanges, s.logger)
		if err != nil {
			return fmt.Errorf("watching runs: %w", err)
		}
		rw.Start(ctx)
		defer rw.Stop()
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// onRunChanges forwards runs directory changes to clients and records
// finished runs with the observer.
func (s *Server) onRunChanges(events []observer.Event) {
	for _, ev := range events {
		if ev.Kind == observer.RunSaved && ev.RunID != "" {
			if run, err := s.runs.GetRun(ev.RunID); err == nil {
				s.observer.RecordRun(run)
			}
		}
		s.Broadcast(Event{Type: string(ev.Kind), Data: ev})
	}
}

// Broadcast sends an event to all SSE and websocket clients
func (s *Server) Broadcast(event Event) {
	s.hub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
