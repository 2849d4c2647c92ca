package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/maintenance"
	"github.com/hochfrequenz/lintgate/internal/observer"
	"github.com/hochfrequenz/lintgate/internal/validation"
)

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Running     int                       `json:"running_validations"`
	Stuck       int                       `json:"stuck_validations"`
	Tasks       map[domain.TaskStatus]int `json:"tasks"`
	LastRun     *domain.ValidationRun     `json:"last_run,omitempty"`
	Metrics     observer.Metrics          `json:"metrics"`
	Maintenance []maintenance.Status      `json:"maintenance,omitempty"`
}

// RunningResponse describes one live background validation
type RunningResponse struct {
	domain.PIDMarker
	Elapsed string `json:"elapsed"`
	Stuck   bool   `json:"stuck"`
}

// ValidateRequest is the body of POST /api/validate
type ValidateRequest struct {
	Files      []string `json:"files"`
	FailFast   bool     `json:"fail_fast"`
	MaxWorkers int      `json:"max_workers"`
}

// ValidateResponse is returned once an async validation is queued
type ValidateResponse struct {
	TaskID string `json:"task_id"`
	Tools  int    `json:"tools"`
}

// CancelRequest is the optional body of POST /api/tasks/{id}/cancel
type CancelRequest struct {
	Reason string `json:"reason"`
}

// queryLimit parses ?limit=, falling back to def
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

// decodeBody reads an optional JSON body into v; an empty body is allowed
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		status := StatusResponse{Tasks: make(map[domain.TaskStatus]int)}
		if s.tasks != nil {
			for _, t := range s.tasks.ListTasks("", 0) {
				status.Tasks[t.Status]++
			}
		}
		if s.runs != nil {
			running := s.runs.RunningValidations()
			status.Running = len(running)
			status.Stuck = len(s.observer.Stuck(running, s.now()))
			status.LastRun = s.runs.LastRun()
			s.observer.RecordRun(status.LastRun)
		}
		status.Metrics = s.observer.GetMetrics()
		if s.maintenance != nil {
			status.Maintenance = s.maintenance.Statuses()
		}

		writeJSON(w, status)
	}
}

func (s *Server) listTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task manager not configured")
			return
		}

		var status domain.TaskStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, ok := domain.ParseTaskStatus(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
				return
			}
			status = st
		}
		limit, err := queryLimit(r, 50)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, s.tasks.ListTasks(status, limit))
	}
}

func (s *Server) getTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task manager not configured")
			return
		}

		task, ok := s.tasks.GetTask(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, task)
	}
}

func (s *Server) cancelTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "task manager not configured")
			return
		}

		var req CancelRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}

		id := r.PathValue("id")
		if _, ok := s.tasks.GetTask(id); !ok {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		if !s.tasks.CancelTask(id, req.Reason) {
			writeError(w, http.StatusConflict, "task already finished")
			return
		}
		task, _ := s.tasks.GetTask(id)
		writeJSON(w, task)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.runs == nil {
			writeError(w, http.StatusServiceUnavailable, "process manager not configured")
			return
		}
		limit, err := queryLimit(r, 10)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		runs := s.runs.RunHistory(limit)
		for _, run := range runs {
			s.observer.RecordRun(run)
		}
		writeJSON(w, runs)
	}
}

func (s *Server) lastRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.runs == nil {
			writeError(w, http.StatusServiceUnavailable, "process manager not configured")
			return
		}

		run := s.runs.LastRun()
		if run == nil {
			writeError(w, http.StatusNotFound, "no previous run")
			return
		}
		writeJSON(w, run)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.runs == nil {
			writeError(w, http.StatusServiceUnavailable, "process manager not configured")
			return
		}

		id := r.PathValue("id")
		if id == "" || filepath.Base(id) != id || id == ".." {
			writeError(w, http.StatusBadRequest, "invalid run id")
			return
		}
		run, err := s.runs.GetRun(id)
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, run)
	}
}

func (s *Server) runningHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.runs == nil {
			writeError(w, http.StatusServiceUnavailable, "process manager not configured")
			return
		}

		now := s.now()
		markers := s.runs.RunningValidations()
		out := make([]RunningResponse, len(markers))
		for i, m := range markers {
			out[i] = RunningResponse{
				PIDMarker: m,
				Elapsed:   now.Sub(m.Started).Round(time.Second).String(),
				Stuck:     s.observer.IsStuck(m, now),
			}
		}
		writeJSON(w, out)
	}
}

func (s *Server) validateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.engine == nil || s.tasks == nil {
			writeError(w, http.StatusServiceUnavailable, "validation engine not configured")
			return
		}

		var req ValidateRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		if req.MaxWorkers < 0 {
			writeError(w, http.StatusBadRequest, "max_workers must not be negative")
			return
		}

		taskID := s.engine.StartAsync(s.baseCtx, s.tasks, req.Files, validation.Options{
			FailFast:   req.FailFast,
			MaxWorkers: req.MaxWorkers,
		})
		s.logger.Info("queued async validation", "task_id", taskID, "files", len(req.Files))
		writeJSONStatus(w, http.StatusAccepted, ValidateResponse{TaskID: taskID, Tools: len(s.engine.Tools())})
	}
}

func (s *Server) maintenanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.maintenance == nil {
			writeError(w, http.StatusServiceUnavailable, "maintenance not configured")
			return
		}
		writeJSON(w, s.maintenance.Statuses())
	}
}

func (s *Server) runJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.maintenance == nil {
			writeError(w, http.StatusServiceUnavailable, "maintenance not configured")
			return
		}

		name := r.PathValue("job")
		if !slices.Contains(s.maintenance.Jobs(), name) {
			writeError(w, http.StatusNotFound, "unknown job")
			return
		}
		if err := s.maintenance.RunNow(r.Context(), name); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]string{"job": name, "status": "ok"})
	}
}
