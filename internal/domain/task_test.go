package domain

import (
	"testing"
	"time"
)

func TestTaskStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskPending, false},
		{TaskRunning, false},
		{TaskCompleted, true},
		{TaskFailed, true},
		{TaskCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestParseTaskStatus(t *testing.T) {
	if st, ok := ParseTaskStatus("running"); !ok || st != TaskRunning {
		t.Errorf("ParseTaskStatus(running) = %q, %v", st, ok)
	}
	if _, ok := ParseTaskStatus("bogus"); ok {
		t.Error("ParseTaskStatus(bogus) should fail")
	}
}

func TestAsyncTask_Clone(t *testing.T) {
	done := time.Now()
	task := &AsyncTask{
		TaskID:    "abc12345",
		Status:    TaskCompleted,
		Completed: &done,
		Arguments: map[string]any{"files": "a.py"},
	}

	cp := task.Clone()
	cp.Arguments["files"] = "b.py"
	*cp.Completed = done.Add(time.Hour)

	if task.Arguments["files"] != "a.py" {
		t.Errorf("Arguments mutated through clone: %v", task.Arguments)
	}
	if !task.Completed.Equal(done) {
		t.Errorf("Completed mutated through clone")
	}
}

func TestAsyncTask_Percent(t *testing.T) {
	task := &AsyncTask{Progress: 1, Total: 4}
	if got := task.Percent(); got != 25 {
		t.Errorf("Percent() = %v, want 25", got)
	}
	task.Total = 0
	if got := task.Percent(); got != 0 {
		t.Errorf("Percent() with zero total = %v, want 0", got)
	}
}

func TestToolStatus_IsFailure(t *testing.T) {
	for _, st := range []ToolStatus{ToolFailed, ToolTimeout, ToolSkipped} {
		if !st.IsFailure() {
			t.Errorf("%s.IsFailure() = false, want true", st)
		}
	}
	for _, st := range []ToolStatus{ToolSuccess, ToolRunning, ToolPending} {
		if st.IsFailure() {
			t.Errorf("%s.IsFailure() = true, want false", st)
		}
	}
}
