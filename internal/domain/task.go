package domain

import (
	"maps"
	"time"
)

// AsyncTask is a pollable handle for a validation running on a background worker
type AsyncTask struct {
	TaskID    string         `json:"task_id"`
	Status    TaskStatus     `json:"status"`
	Progress  int            `json:"progress"`
	Total     int            `json:"total"`
	Message   string         `json:"message"`
	Started   time.Time      `json:"started"`
	Completed *time.Time     `json:"completed,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Clone returns a copy that can be handed out without holding the owner's lock.
// Result is shared; callers treat it as read-only.
func (t *AsyncTask) Clone() *AsyncTask {
	cp := *t
	if t.Completed != nil {
		c := *t.Completed
		cp.Completed = &c
	}
	if t.Arguments != nil {
		cp.Arguments = maps.Clone(t.Arguments)
	}
	return &cp
}

// Percent returns progress as a percentage, 0 when the total is unknown
func (t *AsyncTask) Percent() float64 {
	if t.Total <= 0 {
		return 0
	}
	return float64(t.Progress) / float64(t.Total) * 100
}

// Age returns how long ago the task reached its terminal state, or started
func (t *AsyncTask) Age(now time.Time) time.Duration {
	if t.Completed != nil {
		return now.Sub(*t.Completed)
	}
	return now.Sub(t.Started)
}
