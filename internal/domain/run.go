package domain

import (
	"fmt"
	"time"
)

// maxDetails caps the number of error/warning lines kept on a run record
const maxDetails = 50

// RunIDLayout produces sortable, timestamp-based run identifiers
const RunIDLayout = "20060102-150405.000000"

// NewRunID returns a run id for the given instant
func NewRunID(t time.Time) string {
	return t.UTC().Format(RunIDLayout)
}

// ValidationRun is the persisted record of one end-to-end validation
type ValidationRun struct {
	RunID          string     `json:"run_id"`
	Started        time.Time  `json:"started"`
	Completed      *time.Time `json:"completed,omitempty"`
	Files          []string   `json:"files"`
	Success        bool       `json:"success"`
	ToolsRun       []string   `json:"tools_run"`
	Errors         int        `json:"errors"`
	Warnings       int        `json:"warnings"`
	ExitCode       *int       `json:"exit_code,omitempty"`
	PID            int        `json:"pid,omitempty"`
	ErrorDetails   []string   `json:"error_details"`
	WarningDetails []string   `json:"warning_details"`
}

// NewValidationRun starts a run record for the given files
func NewValidationRun(runID string, files []string, started time.Time) *ValidationRun {
	if files == nil {
		files = []string{}
	}
	return &ValidationRun{
		RunID:          runID,
		Started:        started,
		Files:          files,
		ToolsRun:       []string{},
		ErrorDetails:   []string{},
		WarningDetails: []string{},
	}
}

// IsCompleted returns true once a completion time has been recorded
func (r *ValidationRun) IsCompleted() bool {
	return r.Completed != nil
}

// Complete stamps completion time and exit code; success follows the exit code
func (r *ValidationRun) Complete(exitCode int, at time.Time) {
	r.Completed = &at
	r.ExitCode = &exitCode
	r.Success = exitCode == 0
}

// Elapsed returns the run duration, or the time since start if still running
func (r *ValidationRun) Elapsed(now time.Time) time.Duration {
	if r.Completed != nil {
		return r.Completed.Sub(r.Started)
	}
	return now.Sub(r.Started)
}

// ApplyResults folds per-tool results into the run totals and details
func (r *ValidationRun) ApplyResults(results []ToolResult) {
	r.ToolsRun = r.ToolsRun[:0]
	r.Errors, r.Warnings = 0, 0
	r.ErrorDetails = r.ErrorDetails[:0]
	r.WarningDetails = r.WarningDetails[:0]

	for _, res := range results {
		if res.Status != ToolSkipped {
			r.ToolsRun = append(r.ToolsRun, res.ToolName)
		}
		r.Errors += res.Errors
		r.Warnings += res.Warnings

		switch {
		case res.Status == ToolFailed || res.Status == ToolTimeout:
			msg := res.ErrorMessage
			if msg == "" {
				msg = fmt.Sprintf("%d error(s)", res.Errors)
			}
			r.addError(fmt.Sprintf("%s: %s", res.ToolName, msg))
		case res.Status == ToolSkipped && res.ErrorMessage != "":
			r.addWarning(fmt.Sprintf("%s: skipped (%s)", res.ToolName, res.ErrorMessage))
		case res.Warnings > 0:
			r.addWarning(fmt.Sprintf("%s: %d warning(s)", res.ToolName, res.Warnings))
		}
	}
}

func (r *ValidationRun) addError(msg string) {
	if len(r.ErrorDetails) < maxDetails {
		r.ErrorDetails = append(r.ErrorDetails, msg)
	}
}

func (r *ValidationRun) addWarning(msg string) {
	if len(r.WarningDetails) < maxDetails {
		r.WarningDetails = append(r.WarningDetails, msg)
	}
}

// PIDMarker records that a detached validation process is believed to be live
type PIDMarker struct {
	PID     int       `json:"pid"`
	RunID   string    `json:"run_id"`
	Files   []string  `json:"files"`
	Started time.Time `json:"started"`
}

// Overlaps reports whether the marker covers any of the given files
func (m PIDMarker) Overlaps(files []string) bool {
	if len(m.Files) == 0 || len(files) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(m.Files))
	for _, f := range m.Files {
		set[f] = struct{}{}
	}
	for _, f := range files {
		if _, ok := set[f]; ok {
			return true
		}
	}
	return false
}
