// Package executor runs validation tools level by level over a dependency
// graph, in parallel within each level.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/scheduler"
)

// DefaultTimeout is the per-tool soft deadline
const DefaultTimeout = 30 * time.Second

const (
	reasonDependencyFailed = "dependency failed"
	reasonFailFast         = "fail-fast: an earlier level failed"
	reasonCancelled        = "execution cancelled"
)

// Tool is one external linter or formatter
type Tool interface {
	Run(ctx context.Context) domain.ToolResult
}

// TimeoutTool is implemented by tools whose deadline differs from the
// executor default. A zero duration means the default applies.
type TimeoutTool interface {
	ToolTimeout() time.Duration
}

// ToolFunc adapts a plain function to the Tool interface
type ToolFunc func(ctx context.Context) domain.ToolResult

// Run calls f(ctx)
func (f ToolFunc) Run(ctx context.Context) domain.ToolResult { return f(ctx) }

// ProgressFunc is invoked when a tool starts and when it reaches a terminal state
type ProgressFunc func(tool string, status domain.ToolStatus, errors, warnings int)

// Config configures the executor
type Config struct {
	MaxWorkers int
	Timeout    time.Duration
	FailFast   bool
}

// DefaultMaxWorkers returns CPU count minus one, at least one
func DefaultMaxWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// Executor runs tools in dependency order
type Executor struct {
	sched  *scheduler.Scheduler
	config Config
	logger *slog.Logger
}

// New creates an executor over a validated scheduler
func New(sched *scheduler.Scheduler, config Config, logger *slog.Logger) *Executor {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultMaxWorkers()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{sched: sched, config: config, logger: logger}
}

// Config returns the effective configuration
func (e *Executor) Config() Config {
	return e.config
}

// ExecuteTools runs every tool present in both the graph and the map.
// Tool failures, panics and timeouts are reported as results; nothing is
// returned as an error. Results are ordered by level, then by position
// within the level.
func (e *Executor) ExecuteTools(ctx context.Context, tools map[string]Tool, progress ProgressFunc) []domain.ToolResult {
	for name := range tools {
		if !e.sched.Has(name) {
			e.logger.Warn("tool not in dependency graph, ignoring", "tool", name)
		}
	}

	levels, err := e.sched.ExecutionOrder()
	if err != nil {
		// New already rejected cycles; report every tool as failed rather than panic
		e.logger.Error("cannot compute execution order", "error", err)
		var results []domain.ToolResult
		for _, name := range e.sched.Tools() {
			if _, ok := tools[name]; ok {
				results = append(results, domain.ToolResult{ToolName: name, Status: domain.ToolFailed, ErrorMessage: err.Error()})
			}
		}
		return results
	}

	failed := make(map[string]bool)
	var results []domain.ToolResult
	stopReason := ""

	for i, level := range levels {
		var runnable []string
		for _, name := range level {
			if _, ok := tools[name]; !ok {
				continue
			}
			if stopReason != "" {
				results = append(results, e.skip(name, stopReason, progress))
				failed[name] = true
				continue
			}
			if e.hasFailedDependency(name, failed) {
				results = append(results, e.skip(name, reasonDependencyFailed, progress))
				failed[name] = true
				continue
			}
			runnable = append(runnable, name)
		}
		if len(runnable) == 0 {
			continue
		}

		e.logger.Debug("executing level", "level", i, "tools", runnable)
		levelResults := e.runLevel(ctx, runnable, tools, progress)

		levelFailed := false
		for _, res := range levelResults {
			if res.Status.IsFailure() {
				failed[res.ToolName] = true
				levelFailed = true
			}
		}
		results = append(results, levelResults...)

		switch {
		case ctx.Err() != nil:
			stopReason = reasonCancelled
		case levelFailed && e.config.FailFast:
			e.logger.Info("fail-fast: skipping remaining levels", "level", i)
			stopReason = reasonFailFast
		}
	}

	return results
}

func (e *Executor) hasFailedDependency(name string, failed map[string]bool) bool {
	for _, dep := range e.sched.Dependencies(name) {
		if failed[dep] {
			return true
		}
	}
	return false
}

func (e *Executor) skip(name, reason string, progress ProgressFunc) domain.ToolResult {
	res := domain.SkippedResult(name, reason)
	recordToolMetrics(res)
	e.notify(progress, name, domain.ToolSkipped, 0, 0)
	return res
}

// runLevel executes one level on a pool bounded by MaxWorkers
func (e *Executor) runLevel(ctx context.Context, names []string, tools map[string]Tool, progress ProgressFunc) []domain.ToolResult {
	results := make([]domain.ToolResult, len(names))

	var g errgroup.Group
	g.SetLimit(e.config.MaxWorkers)
	for i, name := range names {
		g.Go(func() error {
			results[i] = e.runTool(ctx, name, tools[name], progress)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runTool wraps a single invocation with the soft timeout. On timeout the
// tool keeps running in its goroutine; the executor only stops waiting.
func (e *Executor) runTool(ctx context.Context, name string, tool Tool, progress ProgressFunc) domain.ToolResult {
	e.notify(progress, name, domain.ToolRunning, 0, 0)
	start := time.Now()

	done := make(chan domain.ToolResult, 1)
	go func() {
		done <- e.invoke(ctx, name, tool)
	}()

	timeout := e.timeoutFor(tool)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res domain.ToolResult
	select {
	case res = <-done:
		res = normalize(name, res, time.Since(start))
	case <-timer.C:
		e.logger.Warn("tool timed out", "tool", name, "timeout", timeout)
		res = domain.ToolResult{
			ToolName:     name,
			Status:       domain.ToolTimeout,
			DurationSecs: time.Since(start).Seconds(),
			ErrorMessage: fmt.Sprintf("timed out after %s", timeout),
		}
	case <-ctx.Done():
		res = domain.ToolResult{
			ToolName:     name,
			Status:       domain.ToolFailed,
			DurationSecs: time.Since(start).Seconds(),
			ErrorMessage: ctx.Err().Error(),
		}
	}

	recordToolMetrics(res)
	e.notify(progress, name, res.Status, res.Errors, res.Warnings)
	return res
}

func (e *Executor) timeoutFor(tool Tool) time.Duration {
	if tt, ok := tool.(TimeoutTool); ok {
		if d := tt.ToolTimeout(); d > 0 {
			return d
		}
	}
	return e.config.Timeout
}

// invoke calls the tool and converts a panic into a failed result
func (e *Executor) invoke(ctx context.Context, name string, tool Tool) (res domain.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool crashed", "tool", name, "panic", r)
			res = domain.ToolResult{
				ToolName:     name,
				Status:       domain.ToolFailed,
				ErrorMessage: fmt.Sprint(r),
			}
		}
	}()
	if tool == nil {
		return domain.ToolResult{ToolName: name, Status: domain.ToolFailed, ErrorMessage: "no tool registered"}
	}
	return tool.Run(ctx)
}

// normalize fills fields a tool adapter may have left empty
func normalize(name string, res domain.ToolResult, elapsed time.Duration) domain.ToolResult {
	res.ToolName = name
	if res.DurationSecs == 0 {
		res.DurationSecs = elapsed.Seconds()
	}
	switch res.Status {
	case "", domain.ToolPending, domain.ToolRunning:
		if res.Success {
			res.Status = domain.ToolSuccess
		} else {
			res.Status = domain.ToolFailed
		}
	}
	res.Success = res.Status == domain.ToolSuccess
	return res
}

func (e *Executor) notify(progress ProgressFunc, name string, status domain.ToolStatus, errs, warns int) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("progress callback panicked", "tool", name, "panic", r)
		}
	}()
	progress(name, status, errs, warns)
}
