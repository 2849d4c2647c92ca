package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/executor"
	"github.com/hochfrequenz/lintgate/internal/logging"
	"github.com/hochfrequenz/lintgate/internal/mcp"
)

const projectYAML = `tools:
  black:
    command: black
  mypy:
    command: mypy
    depends_on: [black]
`

func newTestServices(t *testing.T) *services {
	t.Helper()
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, config.ProjectFileName), []byte(projectYAML), 0644))

	cfg := config.Default()
	cfg.General.CacheDir = t.TempDir()

	svc, closeFn, err := newServices(cfg, repo, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(closeFn)
	require.NotNil(t, svc.engine)

	svc.engine.WithTools(func(p *config.Project, files []string) map[string]executor.Tool {
		out := make(map[string]executor.Tool)
		for name := range p.Tools {
			out[name] = executor.ToolFunc(func(ctx context.Context) domain.ToolResult {
				if name == "mypy" {
					return domain.ToolResult{Status: domain.ToolFailed, Errors: 3, ErrorMessage: "incompatible types"}
				}
				return domain.ToolResult{Success: true}
			})
		}
		return out
	})
	return svc
}

func connect(t *testing.T, svc *services) *mcp.Client {
	t.Helper()
	srv := mcp.NewServer("lintgate", version, logging.Discard())
	svc.register(srv)

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(context.Background(), reqR, respW)
		respW.Close()
	}()

	c, err := mcp.Connect(respR, reqW)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		<-done
	})
	return c
}

func callJSON(t *testing.T, c *mcp.Client, name string, args map[string]any, out any) {
	t.Helper()
	res, err := c.CallTool(name, args)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(res.Text()), out), res.Text())
}

func TestToolCatalogue(t *testing.T) {
	c := connect(t, newTestServices(t))
	tools, err := c.ListTools()
	require.NoError(t, err)

	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"validate_async", "get_task", "list_tasks", "cancel_task",
		"check_previous_run", "get_run_history", "get_running_validations", "get_latest_results",
	}, names)
}

func TestValidateAsyncLifecycle(t *testing.T) {
	svc := newTestServices(t)
	c := connect(t, svc)

	var started struct {
		TaskID string `json:"task_id"`
	}
	callJSON(t, c, "validate_async", map[string]any{"files": []any{"a.py"}}, &started)
	require.Len(t, started.TaskID, 8)

	var task domain.AsyncTask
	require.Eventually(t, func() bool {
		callJSON(t, c, "get_task", map[string]any{"task_id": started.TaskID}, &task)
		return task.Status == domain.TaskCompleted
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, task.Progress)
	assert.Equal(t, 2, task.Total)

	result, ok := task.Result.(map[string]any)
	require.True(t, ok, "result = %#v", task.Result)
	assert.Equal(t, false, result["success"])

	var tasks []domain.AsyncTask
	callJSON(t, c, "list_tasks", map[string]any{"status": "completed"}, &tasks)
	require.Len(t, tasks, 1)

	var rf domain.ResultsFile
	callJSON(t, c, "get_latest_results", nil, &rf)
	assert.Equal(t, result["run_id"], rf.RunID)

	_, err := c.CallTool("cancel_task", map[string]any{"task_id": started.TaskID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already finished")
}

func TestCancelTask(t *testing.T) {
	svc := newTestServices(t)
	c := connect(t, svc)
	id := svc.tasks.CreateTask("validate", nil)

	var task domain.AsyncTask
	callJSON(t, c, "cancel_task", map[string]any{"task_id": id, "reason": "superseded"}, &task)
	assert.Equal(t, domain.TaskCancelled, task.Status)
	assert.Equal(t, "superseded", task.Error)

	_, err := c.CallTool("cancel_task", map[string]any{"task_id": "nope"})
	assert.Error(t, err)
	_, err = c.CallTool("list_tasks", map[string]any{"status": "weird"})
	assert.Error(t, err)
}

func TestPreviousRunAndHistory(t *testing.T) {
	svc := newTestServices(t)
	c := connect(t, svc)

	res, err := c.CallTool("check_previous_run", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Text(), "not blocked")

	res, err = c.CallTool("get_latest_results", nil)
	require.NoError(t, err)
	assert.Equal(t, "No results recorded yet.", res.Text())

	now := time.Now()
	run := domain.NewValidationRun("20260301-090000.000000", []string{"a.py"}, now.Add(-time.Second))
	run.ApplyResults([]domain.ToolResult{{ToolName: "mypy", Status: domain.ToolFailed, Errors: 1}})
	run.Complete(1, now)
	require.NoError(t, svc.procs.SaveRun(run))

	var prev domain.ValidationRun
	callJSON(t, c, "check_previous_run", nil, &prev)
	assert.Equal(t, run.RunID, prev.RunID)
	assert.False(t, prev.Success)

	var history []domain.ValidationRun
	callJSON(t, c, "get_run_history", map[string]any{"limit": 5}, &history)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"mypy: 1 error(s)"}, history[0].ErrorDetails)
}
