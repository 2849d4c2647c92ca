// Package taskmgr tracks validations running on background goroutines as
// pollable AsyncTask records.
//
// Cancellation is advisory. CancelTask marks the task cancelled but does not
// stop its worker, and a worker that later calls CompleteTask or FailTask
// replaces the cancelled state with its own outcome.
package taskmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

// Manager owns the in-memory task map. All methods are safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	tasks  map[string]*domain.AsyncTask
	store  Store
	logger *slog.Logger
	now    func() time.Time

	listener func(*domain.AsyncTask)
}

// New creates a manager and reloads terminal tasks from store. A nil store
// keeps tasks in memory only.
func New(store Store, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		tasks:  make(map[string]*domain.AsyncTask),
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	if store == nil {
		return m, nil
	}

	tasks, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	for _, task := range tasks {
		if !task.Status.IsTerminal() {
			continue
		}
		m.tasks[task.TaskID] = task
	}
	if len(m.tasks) > 0 {
		logger.Debug("reloaded tasks", "count", len(m.tasks))
	}
	return m, nil
}

// SetListener registers fn to receive a snapshot after every state change.
// fn is called without the manager lock held and must not block for long.
func (m *Manager) SetListener(fn func(*domain.AsyncTask)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

// changed snapshots task for the listener. Callers hold m.mu.
func (m *Manager) changed(task *domain.AsyncTask) func() {
	fn := m.listener
	if fn == nil {
		return func() {}
	}
	snap := task.Clone()
	return func() { fn(snap) }
}

// newTaskID returns the first 8 hex characters of a random UUID
func newTaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateTask registers a pending task and returns its id
func (m *Manager) CreateTask(toolName string, arguments map[string]any) string {
	m.mu.Lock()
	id := newTaskID()
	for m.tasks[id] != nil {
		id = newTaskID()
	}
	task := &domain.AsyncTask{
		TaskID:    id,
		Status:    domain.TaskPending,
		Message:   "queued",
		Started:   m.now(),
		ToolName:  toolName,
		Arguments: arguments,
	}
	m.tasks[id] = task
	tasksActive.Inc()
	notify := m.changed(task)
	m.mu.Unlock()

	notify()
	return id
}

// UpdateProgress moves a task to running and records its progress. It returns
// false for unknown tasks and for tasks already in a terminal state.
func (m *Manager) UpdateProgress(taskID string, progress, total int, message string) bool {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok || task.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	task.Status = domain.TaskRunning
	task.Progress = progress
	task.Total = total
	task.Message = message
	notify := m.changed(task)
	m.mu.Unlock()

	notify()
	return true
}

// CompleteTask records a successful result and persists the task
func (m *Manager) CompleteTask(taskID string, result any) bool {
	return m.finish(taskID, domain.TaskCompleted, func(task *domain.AsyncTask) {
		task.Progress = task.Total
		task.Result = result
		task.Message = "completed"
	})
}

// FailTask records an error and persists the task
func (m *Manager) FailTask(taskID string, errMsg string) bool {
	return m.finish(taskID, domain.TaskFailed, func(task *domain.AsyncTask) {
		task.Error = errMsg
		task.Message = "failed"
	})
}

// CancelTask marks a non-terminal task cancelled. It returns false when the
// task is unknown or already terminal.
func (m *Manager) CancelTask(taskID string, reason string) bool {
	if reason == "" {
		reason = "cancelled"
	}
	return m.finish(taskID, domain.TaskCancelled, func(task *domain.AsyncTask) {
		task.Message = reason
		task.Error = reason
	})
}

func (m *Manager) finish(taskID string, status domain.TaskStatus, apply func(*domain.AsyncTask)) bool {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok || (status == domain.TaskCancelled && task.Status.IsTerminal()) {
		m.mu.Unlock()
		return false
	}

	switch {
	case !task.Status.IsTerminal():
		tasksActive.Dec()
	case task.Status == domain.TaskCancelled:
		m.logger.Debug("worker finished a cancelled task", "task_id", taskID, "status", status)
	}

	now := m.now()
	task.Status = status
	task.Completed = &now
	apply(task)
	tasksFinished.WithLabelValues(string(status)).Inc()

	m.persist(task)
	notify := m.changed(task)
	m.mu.Unlock()

	notify()
	return true
}

// persist writes a terminal task. Failures are logged and swallowed.
func (m *Manager) persist(task *domain.AsyncTask) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(task); err != nil {
		persistFailures.Inc()
		m.logger.Warn("failed to persist task", "task_id", task.TaskID, "error", err)
	}
}

// IsCancelled lets cooperative workers poll for cancellation
func (m *Manager) IsCancelled(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	return ok && task.Status == domain.TaskCancelled
}

// GetTask returns a snapshot of the task
func (m *Manager) GetTask(taskID string) (*domain.AsyncTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// ListTasks returns snapshots sorted by start time, newest first. An empty
// status matches every task; limit <= 0 means no limit.
func (m *Manager) ListTasks(status domain.TaskStatus, limit int) []*domain.AsyncTask {
	m.mu.Lock()
	out := make([]*domain.AsyncTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, task.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].Started.After(out[j].Started)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CleanupOldTasks removes terminal tasks that finished more than maxAge ago
// from memory and the store. It returns the number removed.
func (m *Manager) CleanupOldTasks(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, task := range m.tasks {
		if !task.Status.IsTerminal() || task.Age(now) <= maxAge {
			continue
		}
		delete(m.tasks, id)
		removed++
		if m.store == nil {
			continue
		}
		if err := m.store.Delete(id); err != nil {
			m.logger.Warn("failed to delete task", "task_id", id, "error", err)
		}
	}
	if removed > 0 {
		m.logger.Info("cleaned up old tasks", "removed", removed)
	}
	return removed
}

// Reporter is handed to a background job to publish its progress
type Reporter func(progress, total int, message string)

// Job is the body of an async task
type Job func(ctx context.Context, report Reporter) (any, error)

// RunAsync creates a task and runs job on its own goroutine. The returned id
// can be polled with GetTask. Panics in job fail the task. Cancellation is
// advisory: the job keeps running, its progress reports are dropped, and its
// final result still overwrites the cancelled status.
func (m *Manager) RunAsync(ctx context.Context, toolName string, arguments map[string]any, job Job) string {
	taskID := m.CreateTask(toolName, arguments)
	report := func(progress, total int, message string) {
		if m.IsCancelled(taskID) {
			return
		}
		m.UpdateProgress(taskID, progress, total, message)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("async task panicked", "task_id", taskID, "panic", r)
				m.FailTask(taskID, fmt.Sprintf("panic: %v", r))
			}
		}()

		m.UpdateProgress(taskID, 0, 0, "starting")
		result, err := job(ctx, report)
		if err != nil {
			m.FailTask(taskID, err.Error())
			return
		}
		m.CompleteTask(taskID, result)
	}()

	return taskID
}
