// Package observer watches validation runs: it flags runs that appear stuck,
// aggregates completed runs, and reports changes to the runs directory.
package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

// Observer collects run outcomes for the status API
type Observer struct {
	stuckThreshold time.Duration

	completions []completion
	seen        map[string]struct{}
	mu          sync.RWMutex
}

type completion struct {
	RunID       string
	Success     bool
	Duration    time.Duration
	Errors      int
	Warnings    int
	CompletedAt time.Time
}

// Metrics holds aggregated run metrics
type Metrics struct {
	TotalCompleted int           `json:"total_completed"`
	TotalFailed    int           `json:"total_failed"`
	TotalErrors    int           `json:"total_errors"`
	TotalWarnings  int           `json:"total_warnings"`
	AvgDuration    time.Duration `json:"avg_duration_ns"`
}

// New creates a new Observer
func New(stuckThreshold time.Duration) *Observer {
	return &Observer{
		stuckThreshold: stuckThreshold,
		seen:           make(map[string]struct{}),
	}
}

// IsStuck returns true if a live validation has run longer than the threshold
func (o *Observer) IsStuck(marker domain.PIDMarker, now time.Time) bool {
	if marker.Started.IsZero() {
		return false
	}
	return now.Sub(marker.Started) > o.stuckThreshold
}

// Stuck filters markers down to the stuck ones
func (o *Observer) Stuck(markers []domain.PIDMarker, now time.Time) []domain.PIDMarker {
	var out []domain.PIDMarker
	for _, m := range markers {
		if o.IsStuck(m, now) {
			out = append(out, m)
		}
	}
	return out
}

// RecordRun records a completed run once; repeated ids and incomplete runs
// are ignored.
func (o *Observer) RecordRun(run *domain.ValidationRun) {
	if run == nil || !run.IsCompleted() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.seen[run.RunID]; ok {
		return
	}
	o.seen[run.RunID] = struct{}{}
	o.completions = append(o.completions, completion{
		RunID:       run.RunID,
		Success:     run.Success,
		Duration:    run.Elapsed(*run.Completed),
		Errors:      run.Errors,
		Warnings:    run.Warnings,
		CompletedAt: *run.Completed,
	})
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration

	for _, c := range o.completions {
		metrics.TotalCompleted++
		if !c.Success {
			metrics.TotalFailed++
		}
		metrics.TotalErrors += c.Errors
		metrics.TotalWarnings += c.Warnings
		totalDuration += c.Duration
	}

	if metrics.TotalCompleted > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(metrics.TotalCompleted)
	}

	return metrics
}

// GetRecentRuns returns ids of runs completed after now minus since
func (o *Observer) GetRecentRuns(since time.Duration, now time.Time) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := now.Add(-since)
	var result []string

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.RunID)
		}
	}

	return result
}
