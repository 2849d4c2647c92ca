package validation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/executor"
	"github.com/hochfrequenz/lintgate/internal/fsutil"
	"github.com/hochfrequenz/lintgate/internal/logging"
	"github.com/hochfrequenz/lintgate/internal/scheduler"
	"github.com/hochfrequenz/lintgate/internal/taskmgr"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.General.CacheDir = t.TempDir()
	cfg.General.MaxWorkers = 4
	return cfg
}

// fakeTools returns fixed results; failing names fail with one error
func fakeTools(failing ...string) ToolFactory {
	fail := make(map[string]bool)
	for _, name := range failing {
		fail[name] = true
	}
	return func(project *config.Project, files []string) map[string]executor.Tool {
		out := make(map[string]executor.Tool)
		for name := range project.Tools {
			failed := fail[name]
			out[name] = executor.ToolFunc(func(ctx context.Context) domain.ToolResult {
				if failed {
					return domain.ToolResult{Status: domain.ToolFailed, Errors: 1, ErrorMessage: "bad style"}
				}
				return domain.ToolResult{Success: true, Warnings: 1}
			})
		}
		return out
	}
}

func exampleProject() *config.Project {
	return &config.Project{
		Root: "/repo",
		Tools: map[string]config.ToolConfig{
			"black":  {Command: "black"},
			"isort":  {Command: "isort"},
			"mypy":   {Command: "mypy", DependsOn: []string{"black", "isort"}},
			"flake8": {Command: "flake8", DependsOn: []string{"black", "isort"}},
		},
	}
}

func TestNew_RejectsCycle(t *testing.T) {
	project := &config.Project{Tools: map[string]config.ToolConfig{
		"a": {Command: "a", DependsOn: []string{"b"}},
		"b": {Command: "b", DependsOn: []string{"a"}},
	}}

	_, err := New(testConfig(t), project, logging.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, scheduler.ErrCycle))
}

func TestRun_Success(t *testing.T) {
	cfg := testConfig(t)
	engine, err := New(cfg, exampleProject(), logging.Discard())
	require.NoError(t, err)
	engine.WithTools(fakeTools())

	report, err := engine.Run(context.Background(), []string{"a.py"}, Options{RunID: "run-1"}, nil)
	require.NoError(t, err)

	assert.True(t, report.Run.Success)
	assert.Equal(t, 0, *report.Run.ExitCode)
	assert.Len(t, report.Run.ToolsRun, 4)
	assert.Equal(t, 4, report.Summary.Passed)
	assert.Equal(t, 4, report.Run.Warnings)
	assert.Equal(t, filepath.Join(cfg.ResultsDir(), "run-1_results.json"), report.ResultsPath)

	latest, err := LatestResults(cfg)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
	assert.Len(t, latest.Results, 4)
}

func TestRun_FailureSkipsDependents(t *testing.T) {
	cfg := testConfig(t)
	engine, err := New(cfg, exampleProject(), logging.Discard())
	require.NoError(t, err)
	engine.WithTools(fakeTools("black"))

	report, err := engine.Run(context.Background(), nil, Options{RunID: "run-2"}, nil)
	require.NoError(t, err)

	assert.False(t, report.Run.Success)
	assert.Equal(t, 1, *report.Run.ExitCode)

	statuses := make(map[string]domain.ToolStatus)
	for _, res := range report.Results {
		statuses[res.ToolName] = res.Status
	}
	assert.Equal(t, domain.ToolFailed, statuses["black"])
	assert.Equal(t, domain.ToolSuccess, statuses["isort"])
	assert.Equal(t, domain.ToolSkipped, statuses["mypy"])
	assert.Equal(t, domain.ToolSkipped, statuses["flake8"])
	assert.Contains(t, report.Run.ErrorDetails, "black: bad style")

	var rf domain.ResultsFile
	require.NoError(t, fsutil.ReadJSON(report.ResultsPath, &rf))
	assert.Equal(t, 2, rf.Summary.Skipped)
}

func TestRun_RunIDFromEnvironment(t *testing.T) {
	t.Setenv("LINTGATE_RUN_ID", "from-parent")
	engine, err := New(testConfig(t), exampleProject(), logging.Discard())
	require.NoError(t, err)
	engine.WithTools(fakeTools())

	report, err := engine.Run(context.Background(), nil, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-parent", report.Run.RunID)
}

func TestRun_ConcurrentRunsGetDistinctIDs(t *testing.T) {
	t.Setenv("LINTGATE_RUN_ID", "")
	cfg := testConfig(t)
	engine, err := New(cfg, exampleProject(), logging.Discard())
	require.NoError(t, err)
	engine.WithTools(fakeTools())
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return frozen }

	// An id taken by another process is skipped too.
	taken := domain.NewRunID(frozen)
	require.NoError(t, fsutil.WriteJSON(filepath.Join(cfg.ResultsDir(), taken+"_results.json"), domain.ResultsFile{RunID: taken}))

	const runs = 4
	ids := make(chan string, runs)
	var wg sync.WaitGroup
	for range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := engine.Run(context.Background(), nil, Options{}, nil)
			assert.NoError(t, err)
			ids <- report.Run.RunID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.NotEqual(t, taken, id)
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
		assert.FileExists(t, filepath.Join(cfg.ResultsDir(), id+"_results.json"))
	}
	assert.Len(t, seen, runs)
}

func TestRun_FailFastFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.General.FailFast = true
	project := exampleProject()
	project.Tools["pylint"] = config.ToolConfig{Command: "pylint", DependsOn: []string{"isort"}}

	engine, err := New(cfg, project, logging.Discard())
	require.NoError(t, err)
	engine.WithTools(fakeTools("black"))

	report, err := engine.Run(context.Background(), nil, Options{}, nil)
	require.NoError(t, err)
	for _, res := range report.Results {
		if res.ToolName == "pylint" {
			assert.Equal(t, domain.ToolSkipped, res.Status, "fail-fast skips independent later levels")
		}
	}
}

func TestStartAsync(t *testing.T) {
	engine, err := New(testConfig(t), exampleProject(), logging.Discard())
	require.NoError(t, err)
	engine.WithTools(fakeTools("black"))

	tm, err := taskmgr.New(nil, logging.Discard())
	require.NoError(t, err)

	id := engine.StartAsync(context.Background(), tm, []string{"a.py"}, Options{})

	var task *domain.AsyncTask
	require.Eventually(t, func() bool {
		task, _ = tm.GetTask(id)
		return task.Status == domain.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 4, task.Progress)
	assert.Equal(t, 4, task.Total)
	result, ok := task.Result.(AsyncResult)
	require.True(t, ok, "result is %T", task.Result)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Summary.Skipped)
}
