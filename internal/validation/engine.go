// Package validation runs a project's configured tools over a set of files
// and records the outcome.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/executor"
	"github.com/hochfrequenz/lintgate/internal/fsutil"
	"github.com/hochfrequenz/lintgate/internal/procmgr"
	"github.com/hochfrequenz/lintgate/internal/scheduler"
	"github.com/hochfrequenz/lintgate/internal/taskmgr"
	"github.com/hochfrequenz/lintgate/internal/tools"
)

// LatestResultsFile always holds the most recent results
const LatestResultsFile = "latest.json"

// ToolFactory builds the tool set for one run
type ToolFactory func(project *config.Project, files []string) map[string]executor.Tool

// Engine wires configuration, scheduler and executor together
type Engine struct {
	cfg      *config.Config
	project  *config.Project
	sched    *scheduler.Scheduler
	logger   *slog.Logger
	newTools ToolFactory
	now      func() time.Time

	idMu      sync.Mutex
	lastRunAt time.Time
}

// New validates the project's dependency graph. Unknown dependencies and
// cycles are returned as *scheduler.ConfigError.
func New(cfg *config.Config, project *config.Project, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := scheduler.New(project.Dependencies())
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		project:  project,
		sched:    sched,
		logger:   logger,
		newTools: tools.Build,
		now:      time.Now,
	}, nil
}

// WithTools replaces the tool factory, mainly for tests and embedding
func (e *Engine) WithTools(factory ToolFactory) *Engine {
	e.newTools = factory
	return e
}

// Options tweaks a single run
type Options struct {
	// RunID defaults to LINTGATE_RUN_ID when set, else a fresh id
	RunID      string
	FailFast   bool
	MaxWorkers int
}

// Report is the outcome of a run
type Report struct {
	Run         *domain.ValidationRun
	Results     []domain.ToolResult
	Summary     domain.ResultsSummary
	ResultsPath string
}

// Executor returns an executor configured for opts
func (e *Engine) Executor(opts Options) *executor.Executor {
	workers := e.cfg.General.MaxWorkers
	if opts.MaxWorkers > 0 {
		workers = opts.MaxWorkers
	}
	return executor.New(e.sched, executor.Config{
		MaxWorkers: workers,
		Timeout:    e.cfg.ToolTimeout(),
		FailFast:   opts.FailFast || e.cfg.General.FailFast,
	}, e.logger)
}

// Tools returns the configured tool names in sorted order
func (e *Engine) Tools() []string {
	return e.sched.Tools()
}

// Run executes every tool, writes the results files and returns the report.
// Tool failures are data; the error is only set when results could not be
// written.
func (e *Engine) Run(ctx context.Context, files []string, opts Options, progress executor.ProgressFunc) (*Report, error) {
	runID := opts.RunID
	if runID == "" {
		runID = os.Getenv(procmgr.RunIDEnv)
	}
	if runID == "" {
		runID = e.nextRunID()
	}

	run := domain.NewValidationRun(runID, files, e.now())
	run.PID = os.Getpid()

	e.logger.Info("starting validation", "run_id", runID, "files", len(files), "tools", len(e.project.Tools))
	results := e.Executor(opts).ExecuteTools(ctx, e.newTools(e.project, files), progress)

	run.ApplyResults(results)
	exitCode := 0
	for _, res := range results {
		if res.Status.IsFailure() && res.Status != domain.ToolSkipped {
			exitCode = 1
			break
		}
	}
	run.Complete(exitCode, e.now())

	report := &Report{Run: run, Results: results, Summary: domain.Summarize(results)}
	e.logger.Info("validation finished",
		"run_id", runID,
		"success", run.Success,
		"errors", run.Errors,
		"warnings", run.Warnings,
		"duration", run.Elapsed(e.now()).Round(time.Millisecond))

	path, err := e.writeResults(run, results, report.Summary)
	if err != nil {
		return report, err
	}
	report.ResultsPath = path
	return report, nil
}

// nextRunID returns a timestamp id that no earlier run of this engine and no
// results file on disk already uses, bumping by a microsecond on collision.
func (e *Engine) nextRunID() string {
	e.idMu.Lock()
	defer e.idMu.Unlock()

	t := e.now().UTC().Truncate(time.Microsecond)
	if !t.After(e.lastRunAt) {
		t = e.lastRunAt.Add(time.Microsecond)
	}
	for {
		id := domain.NewRunID(t)
		if _, err := os.Stat(filepath.Join(e.cfg.ResultsDir(), id+"_results.json")); err != nil {
			e.lastRunAt = t
			return id
		}
		t = t.Add(time.Microsecond)
	}
}

// writeResults writes results/{run_id}_results.json and results/latest.json
func (e *Engine) writeResults(run *domain.ValidationRun, results []domain.ToolResult, summary domain.ResultsSummary) (string, error) {
	if results == nil {
		results = []domain.ToolResult{}
	}
	rf := domain.ResultsFile{
		RunID:     run.RunID,
		Timestamp: *run.Completed,
		Files:     run.Files,
		Success:   run.Success,
		Results:   results,
		Summary:   summary,
	}
	dir := e.cfg.ResultsDir()
	path := filepath.Join(dir, run.RunID+"_results.json")
	if err := fsutil.WriteJSON(path, rf); err != nil {
		return "", fmt.Errorf("writing results: %w", err)
	}
	if err := fsutil.WriteJSON(filepath.Join(dir, LatestResultsFile), rf); err != nil {
		return path, fmt.Errorf("writing latest results: %w", err)
	}
	return path, nil
}

// LatestResults reads results/latest.json
func LatestResults(cfg *config.Config) (*domain.ResultsFile, error) {
	var rf domain.ResultsFile
	if err := fsutil.ReadJSON(filepath.Join(cfg.ResultsDir(), LatestResultsFile), &rf); err != nil {
		return nil, err
	}
	return &rf, nil
}

// AsyncResult is stored on a completed async validation task
type AsyncResult struct {
	RunID    string                `json:"run_id"`
	Success  bool                  `json:"success"`
	Summary  domain.ResultsSummary `json:"summary"`
	Errors   []string              `json:"error_details"`
	Warnings []string              `json:"warning_details"`
}

// StartAsync runs a validation on a background goroutine tracked by tm and
// returns the task id. Progress advances as each tool finishes.
func (e *Engine) StartAsync(ctx context.Context, tm *taskmgr.Manager, files []string, opts Options) string {
	args := map[string]any{"files": files, "fail_fast": opts.FailFast}
	total := len(e.sched.Tools())

	return tm.RunAsync(ctx, "validate", args, func(ctx context.Context, report taskmgr.Reporter) (any, error) {
		var (
			mu   sync.Mutex
			done int
		)
		progress := func(tool string, status domain.ToolStatus, errs, warns int) {
			mu.Lock()
			defer mu.Unlock()
			if !status.IsTerminal() {
				report(done, total, fmt.Sprintf("running %s", tool))
				return
			}
			done++
			report(done, total, fmt.Sprintf("%s: %s", tool, status))
		}

		rep, err := e.Run(ctx, files, opts, progress)
		if rep == nil {
			return nil, err
		}
		if err != nil {
			e.logger.Warn("validation results not written", "run_id", rep.Run.RunID, "error", err)
		}
		return AsyncResult{
			RunID:    rep.Run.RunID,
			Success:  rep.Run.Success,
			Summary:  rep.Summary,
			Errors:   rep.Run.ErrorDetails,
			Warnings: rep.Run.WarningDetails,
		}, nil
	})
}
