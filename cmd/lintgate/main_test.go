package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/logging"
	"github.com/hochfrequenz/lintgate/internal/taskmgr"
	"github.com/hochfrequenz/lintgate/web/api"
)

func TestParseNulList(t *testing.T) {
	assert.Equal(t, []string{"a.py", "dir/b c.py"}, parseNulList([]byte("a.py\x00dir/b c.py\x00")))
	assert.Empty(t, parseNulList(nil))
}

func TestValidateArgs(t *testing.T) {
	oldConfig, oldLevel := configPath, logLevel
	t.Cleanup(func() { configPath, logLevel = oldConfig, oldLevel })

	configPath, logLevel = "/etc/lintgate.toml", "debug"
	a := &app{root: "/repo"}
	got := validateArgs(a, []string{"-weird.py", "b.py"})
	assert.Equal(t, []string{
		"validate", "--repo", "/repo",
		"--config", "/etc/lintgate.toml",
		"--log-level", "debug",
		"--", "-weird.py", "b.py",
	}, got)
}

func TestServeAddr(t *testing.T) {
	oldHost, oldPort := serveHost, servePort
	t.Cleanup(func() { serveHost, servePort = oldHost, oldPort })

	a := &app{cfg: config.Default()}
	serveHost, servePort = "", 0
	assert.Equal(t, "127.0.0.1:8765", serveAddr(a))

	serveHost, servePort = "::1", 9000
	assert.Equal(t, "[::1]:9000", serveAddr(a))
}

func TestExitError(t *testing.T) {
	var err error = exitError{code: 3}
	var exit exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 3, exit.code)
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	progress := printProgress(&buf)
	progress("black", domain.ToolRunning, 0, 0)
	progress("black", domain.ToolSuccess, 0, 0)
	progress("mypy", domain.ToolFailed, 2, 1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "✓ black")
	assert.Contains(t, lines[1], "✗ mypy")
	assert.Contains(t, lines[1], "(2 errors, 1 warnings)")
}

func TestPrintLastRun(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer
	printLastRun(&buf, nil, now)
	assert.Equal(t, "No previous run\n", buf.String())

	run := domain.NewValidationRun("20260101-120000.000000", []string{"a.py"}, now.Add(-3*time.Minute))
	run.ApplyResults([]domain.ToolResult{{ToolName: "flake8", Status: domain.ToolFailed, Errors: 4, ErrorMessage: "E501"}})
	run.Complete(1, now.Add(-2*time.Minute))

	buf.Reset()
	printLastRun(&buf, run, now)
	out := buf.String()
	assert.Contains(t, out, "FAILED 2 minutes ago")
	assert.Contains(t, out, "4 errors")
	assert.Contains(t, out, "✗ flake8: E501")
}

func TestPrintRunning(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer
	printRunning(&buf, nil, now)
	assert.Equal(t, "No validations running\n", buf.String())

	buf.Reset()
	printRunning(&buf, []domain.PIDMarker{{PID: 4242, RunID: "r1", Files: []string{"a", "b"}, Started: now.Add(-time.Minute)}}, now)
	assert.Contains(t, buf.String(), "4242")
	assert.Contains(t, buf.String(), "1 minute ago")
}

func TestAPIClientAgainstServer(t *testing.T) {
	tm, err := taskmgr.New(nil, logging.Discard())
	require.NoError(t, err)
	id := tm.CreateTask("validate", nil)

	srv := api.NewServer(api.Options{Tasks: tm, Logger: logging.Discard()})
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	c := &apiClient{base: httpSrv.URL, http: httpSrv.Client()}
	ctx := context.Background()

	var tasks []domain.AsyncTask
	require.NoError(t, c.do(ctx, "GET", "/api/tasks", nil, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].TaskID)

	var task domain.AsyncTask
	require.NoError(t, c.do(ctx, "POST", "/api/tasks/"+id+"/cancel", map[string]string{"reason": "stop"}, &task))
	assert.Equal(t, domain.TaskCancelled, task.Status)

	err = c.do(ctx, "POST", "/api/tasks/"+id+"/cancel", nil, &task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task already finished")

	var buf bytes.Buffer
	printTask(&buf, &task)
	assert.Contains(t, buf.String(), "Status:   cancelled")
	assert.Contains(t, buf.String(), "Error:    stop")
}

func TestRunNotifier(t *testing.T) {
	t.Setenv(configEnv, "")
	assert.Nil(t, runNotifier(logging.Discard()))

	posted := make(chan string, 1)
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted <- r.URL.Path
	}))
	defer slack.Close()

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := "[notify]\ndesktop = false\nslack_webhook = \"" + slack.URL + "/hook\"\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	t.Setenv(configEnv, path)

	onComplete := runNotifier(logging.Discard())
	require.NotNil(t, onComplete)

	run := domain.NewValidationRun("r1", []string{"a.py"}, time.Now())
	run.Complete(1, time.Now())
	onComplete(run, "/tmp/r1.log")

	select {
	case p := <-posted:
		assert.Equal(t, "/hook", p)
	default:
		t.Fatal("failed run was not posted")
	}
}
