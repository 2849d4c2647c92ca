package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/mcp"
	"github.com/hochfrequenz/lintgate/internal/validation"
)

var taskIDSchema = map[string]any{
	"type":        "string",
	"description": "Task id returned by validate_async",
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (s *services) register(srv *mcp.Server) {
	srv.Register(mcp.ToolInfo{
		Name:        "validate_async",
		Description: "Start validating files in the background. Returns a task id to poll with get_task.",
		InputSchema: objectSchema(map[string]any{
			"files":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Files to validate"},
			"fail_fast":   map[string]any{"type": "boolean", "description": "Skip later levels after a failure"},
			"max_workers": map[string]any{"type": "integer", "description": "Maximum tools running at once"},
		}),
	}, s.validateAsync)

	srv.Register(mcp.ToolInfo{
		Name:        "get_task",
		Description: "Get status, progress and result of an async task",
		InputSchema: objectSchema(map[string]any{"task_id": taskIDSchema}, "task_id"),
	}, s.getTask)

	srv.Register(mcp.ToolInfo{
		Name:        "list_tasks",
		Description: "List async tasks, newest first",
		InputSchema: objectSchema(map[string]any{
			"status": map[string]any{"type": "string", "enum": []string{"pending", "running", "completed", "failed", "cancelled"}},
			"limit":  map[string]any{"type": "integer", "default": 20},
		}),
	}, s.listTasks)

	srv.Register(mcp.ToolInfo{
		Name:        "cancel_task",
		Description: "Mark an async task cancelled. Cancellation is advisory: a worker that finishes afterwards still records its outcome.",
		InputSchema: objectSchema(map[string]any{
			"task_id": taskIDSchema,
			"reason":  map[string]any{"type": "string"},
		}, "task_id"),
	}, s.cancelTask)

	srv.Register(mcp.ToolInfo{
		Name:        "check_previous_run",
		Description: "Report the last background validation if it failed",
	}, s.checkPreviousRun)

	srv.Register(mcp.ToolInfo{
		Name:        "get_run_history",
		Description: "List recent validation runs, newest first",
		InputSchema: objectSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "default": 10},
		}),
	}, s.getRunHistory)

	srv.Register(mcp.ToolInfo{
		Name:        "get_running_validations",
		Description: "List background validations that are still alive",
	}, s.getRunningValidations)

	srv.Register(mcp.ToolInfo{
		Name:        "get_latest_results",
		Description: "Per-tool results of the most recent validation",
	}, s.getLatestResults)
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *services) validateAsync(ctx context.Context, args map[string]any) (string, error) {
	if s.engine == nil {
		return "", errors.New("validation is not configured for this repository")
	}
	files, err := mcp.StringSliceArg(args, "files")
	if err != nil {
		return "", err
	}
	failFast, err := mcp.BoolArg(args, "fail_fast")
	if err != nil {
		return "", err
	}
	workers, err := mcp.IntArg(args, "max_workers", 0)
	if err != nil {
		return "", err
	}
	if workers < 0 {
		return "", errors.New("max_workers must not be negative")
	}

	// The call returns at once; the validation outlives this request.
	taskID := s.engine.StartAsync(s.baseCtx, s.tasks, files, validation.Options{FailFast: failFast, MaxWorkers: workers})
	return toJSON(map[string]any{
		"task_id": taskID,
		"status":  domain.TaskPending,
		"message": fmt.Sprintf("validating %d file(s) with %d tool(s); poll get_task", len(files), len(s.engine.Tools())),
	})
}

func (s *services) getTask(ctx context.Context, args map[string]any) (string, error) {
	id, err := mcp.RequiredString(args, "task_id")
	if err != nil {
		return "", err
	}
	task, ok := s.tasks.GetTask(id)
	if !ok {
		return "", fmt.Errorf("task %s not found", id)
	}
	return toJSON(task)
}

func (s *services) listTasks(ctx context.Context, args map[string]any) (string, error) {
	raw, err := mcp.StringArg(args, "status")
	if err != nil {
		return "", err
	}
	var status domain.TaskStatus
	if raw != "" {
		st, ok := domain.ParseTaskStatus(raw)
		if !ok {
			return "", fmt.Errorf("unknown status %q", raw)
		}
		status = st
	}
	limit, err := mcp.IntArg(args, "limit", 20)
	if err != nil {
		return "", err
	}
	return toJSON(s.tasks.ListTasks(status, limit))
}

func (s *services) cancelTask(ctx context.Context, args map[string]any) (string, error) {
	id, err := mcp.RequiredString(args, "task_id")
	if err != nil {
		return "", err
	}
	reason, err := mcp.StringArg(args, "reason")
	if err != nil {
		return "", err
	}
	if _, ok := s.tasks.GetTask(id); !ok {
		return "", fmt.Errorf("task %s not found", id)
	}
	if !s.tasks.CancelTask(id, reason) {
		return "", fmt.Errorf("task %s already finished", id)
	}
	task, _ := s.tasks.GetTask(id)
	return toJSON(task)
}

func (s *services) checkPreviousRun(ctx context.Context, args map[string]any) (string, error) {
	run := s.procs.CheckPreviousRun()
	if run == nil {
		return "No failed previous run; commits are not blocked.", nil
	}
	return toJSON(run)
}

func (s *services) getRunHistory(ctx context.Context, args map[string]any) (string, error) {
	limit, err := mcp.IntArg(args, "limit", s.cfg.Runs.HistoryLimit)
	if err != nil {
		return "", err
	}
	return toJSON(s.procs.RunHistory(limit))
}

func (s *services) getRunningValidations(ctx context.Context, args map[string]any) (string, error) {
	return toJSON(s.procs.RunningValidations())
}

func (s *services) getLatestResults(ctx context.Context, args map[string]any) (string, error) {
	rf, err := validation.LatestResults(s.cfg)
	if errors.Is(err, os.ErrNotExist) {
		return "No results recorded yet.", nil
	}
	if err != nil {
		return "", err
	}
	return toJSON(rf)
}
