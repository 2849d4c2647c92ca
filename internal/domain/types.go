package domain

// ToolStatus represents the lifecycle state of a single tool execution
type ToolStatus string

const (
	ToolPending ToolStatus = "pending"
	ToolRunning ToolStatus = "running"
	ToolSuccess ToolStatus = "success"
	ToolFailed  ToolStatus = "failed"
	ToolSkipped ToolStatus = "skipped"
	ToolTimeout ToolStatus = "timeout"
)

// IsTerminal returns true once a tool can no longer change state
func (s ToolStatus) IsTerminal() bool {
	switch s {
	case ToolSuccess, ToolFailed, ToolSkipped, ToolTimeout:
		return true
	}
	return false
}

// IsFailure returns true for statuses that block dependent tools
func (s ToolStatus) IsFailure() bool {
	return s == ToolFailed || s == ToolTimeout || s == ToolSkipped
}

// TaskStatus represents the lifecycle state of an async task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled tasks
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ParseTaskStatus validates a status filter string
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch st := TaskStatus(s); st {
	case TaskPending, TaskRunning, TaskCompleted, TaskFailed, TaskCancelled:
		return st, true
	}
	return "", false
}
