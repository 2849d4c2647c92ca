package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/executor"
	"github.com/hochfrequenz/lintgate/internal/logging"
	"github.com/hochfrequenz/lintgate/internal/maintenance"
	"github.com/hochfrequenz/lintgate/internal/procmgr"
	"github.com/hochfrequenz/lintgate/internal/taskmgr"
	"github.com/hochfrequenz/lintgate/internal/validation"
)

type testServer struct {
	*Server
	tasks *taskmgr.Manager
	runs  *procmgr.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()

	tasks, err := taskmgr.New(nil, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	runs, err := procmgr.New(procmgr.Options{
		RunsDir:    filepath.Join(root, "runs"),
		ResultsDir: filepath.Join(root, "results"),
		Logger:     logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.General.CacheDir = root
	project := &config.Project{
		Root: root,
		Tools: map[string]config.ToolConfig{
			"black": {Command: "black"},
			"mypy":  {Command: "mypy", DependsOn: []string{"black"}},
		},
	}
	engine, err := validation.New(cfg, project, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	engine.WithTools(func(p *config.Project, files []string) map[string]executor.Tool {
		out := make(map[string]executor.Tool)
		for name := range p.Tools {
			out[name] = executor.ToolFunc(func(ctx context.Context) domain.ToolResult {
				return domain.ToolResult{Success: true}
			})
		}
		return out
	})

	jobs := []maintenance.Job{{
		Name: "noop",
		Cron: "0 * * * *",
		Run:  func(context.Context) error { return nil },
	}}
	sched, err := maintenance.NewScheduler(jobs, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(Options{
		Addr:        "127.0.0.1:0",
		Tasks:       tasks,
		Runs:        runs,
		Engine:      engine,
		Maintenance: sched,
		Logger:      logging.Discard(),
	})
	return &testServer{Server: srv, tasks: tasks, runs: runs}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func failedRun(id string) *domain.ValidationRun {
	now := time.Now()
	run := domain.NewValidationRun(id, []string{"a.py"}, now.Add(-time.Second))
	run.ApplyResults([]domain.ToolResult{{ToolName: "black", Status: domain.ToolFailed, Errors: 1}})
	run.Complete(1, now)
	return run
}

func TestListTasksHandler(t *testing.T) {
	ts := newTestServer(t)
	done := ts.tasks.CreateTask("validate", nil)
	ts.tasks.CompleteTask(done, nil)
	ts.tasks.CreateTask("validate", nil)

	w := ts.do(t, "GET", "/api/tasks", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if tasks := decode[[]domain.AsyncTask](t, w); len(tasks) != 2 {
		t.Errorf("Task count = %d, want 2", len(tasks))
	}

	w = ts.do(t, "GET", "/api/tasks?status=completed", "")
	tasks := decode[[]domain.AsyncTask](t, w)
	if len(tasks) != 1 || tasks[0].TaskID != done {
		t.Errorf("completed filter returned %+v", tasks)
	}

	if w := ts.do(t, "GET", "/api/tasks?status=bogus", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status = %d, want 400", w.Code)
	}
	if w := ts.do(t, "GET", "/api/tasks?limit=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit = %d, want 400", w.Code)
	}
	if w := ts.do(t, "POST", "/api/tasks", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST = %d, want 405", w.Code)
	}
}

func TestGetTaskHandler(t *testing.T) {
	ts := newTestServer(t)
	id := ts.tasks.CreateTask("validate", map[string]any{"files": []string{"a.py"}})
	ts.tasks.UpdateProgress(id, 1, 4, "running black")

	w := ts.do(t, "GET", "/api/tasks/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	task := decode[domain.AsyncTask](t, w)
	if task.Status != domain.TaskRunning || task.Progress != 1 || task.Total != 4 {
		t.Errorf("task = %+v", task)
	}

	if w := ts.do(t, "GET", "/api/tasks/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing task = %d, want 404", w.Code)
	}
}

func TestCancelTaskHandler(t *testing.T) {
	ts := newTestServer(t)
	id := ts.tasks.CreateTask("validate", nil)

	w := ts.do(t, "POST", "/api/tasks/"+id+"/cancel", `{"reason":"user abort"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	task := decode[domain.AsyncTask](t, w)
	if task.Status != domain.TaskCancelled || task.Error != "user abort" {
		t.Errorf("task = %+v", task)
	}

	if w := ts.do(t, "POST", "/api/tasks/"+id+"/cancel", ""); w.Code != http.StatusConflict {
		t.Errorf("second cancel = %d, want 409", w.Code)
	}
	if w := ts.do(t, "POST", "/api/tasks/missing/cancel", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown task = %d, want 404", w.Code)
	}
	if w := ts.do(t, "POST", "/api/tasks/"+id+"/cancel", "{"); w.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", w.Code)
	}
}

func TestRunsHandlers(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(t, "GET", "/api/runs/last", ""); w.Code != http.StatusNotFound {
		t.Errorf("no last run = %d, want 404", w.Code)
	}

	run := failedRun("20260101-120000.000000")
	if err := ts.runs.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, "GET", "/api/runs/last", "")
	if got := decode[domain.ValidationRun](t, w); got.RunID != run.RunID || got.Success {
		t.Errorf("last run = %+v", got)
	}

	w = ts.do(t, "GET", "/api/runs/"+run.RunID, "")
	if got := decode[domain.ValidationRun](t, w); got.Errors != 1 {
		t.Errorf("run errors = %d, want 1", got.Errors)
	}
	if w := ts.do(t, "GET", "/api/runs/unknown", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown run = %d, want 404", w.Code)
	}

	w = ts.do(t, "GET", "/api/runs", "")
	if runs := decode[[]domain.ValidationRun](t, w); len(runs) != 1 {
		t.Errorf("history = %d runs, want 1", len(runs))
	}

	w = ts.do(t, "GET", "/api/running", "")
	if running := decode[[]RunningResponse](t, w); len(running) != 0 {
		t.Errorf("running = %+v, want none", running)
	}
}

func TestStatusHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.tasks.CreateTask("validate", nil)
	id := ts.tasks.CreateTask("validate", nil)
	ts.tasks.FailTask(id, "boom")
	if err := ts.runs.SaveRun(failedRun("20260101-120000.000000")); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, "GET", "/api/status", "")
	status := decode[StatusResponse](t, w)

	if status.Tasks[domain.TaskPending] != 1 || status.Tasks[domain.TaskFailed] != 1 {
		t.Errorf("task counts = %v", status.Tasks)
	}
	if status.LastRun == nil || status.LastRun.Success {
		t.Errorf("last run = %+v", status.LastRun)
	}
	if status.Metrics.TotalFailed != 1 {
		t.Errorf("TotalFailed = %d, want 1", status.Metrics.TotalFailed)
	}
	if len(status.Maintenance) != 1 {
		t.Errorf("maintenance jobs = %d, want 1", len(status.Maintenance))
	}
}

func TestValidateHandler(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "POST", "/api/validate", `{"files":["a.py"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want 202", w.Code)
	}
	resp := decode[ValidateResponse](t, w)
	if resp.TaskID == "" || resp.Tools != 2 {
		t.Fatalf("response = %+v", resp)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		task, ok := ts.tasks.GetTask(resp.TaskID)
		if ok && task.Status == domain.TaskCompleted {
			if task.Progress != 2 {
				t.Errorf("Progress = %d, want 2", task.Progress)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never completed: %+v", task)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := ts.do(t, "POST", "/api/validate", `{"max_workers":-1}`); w.Code != http.StatusBadRequest {
		t.Errorf("negative workers = %d, want 400", w.Code)
	}
}

func TestMaintenanceHandlers(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/api/maintenance", "")
	if statuses := decode[[]maintenance.Status](t, w); len(statuses) != 1 || statuses[0].Name != "noop" {
		t.Errorf("statuses = %+v", statuses)
	}
	if w := ts.do(t, "POST", "/api/maintenance/noop", ""); w.Code != http.StatusOK {
		t.Errorf("run noop = %d, want 200", w.Code)
	}
	if w := ts.do(t, "POST", "/api/maintenance/other", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown job = %d, want 404", w.Code)
	}
}

func TestUnconfiguredServices(t *testing.T) {
	srv := NewServer(Options{Logger: logging.Discard()})
	for _, path := range []string{"/api/tasks", "/api/runs", "/api/running", "/api/maintenance"} {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s = %d, want 503", path, w.Code)
		}
	}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", hub.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSSEStream(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.Hub().Run(ctx)

	httpSrv := httptest.NewServer(ts.Handler())
	defer httpSrv.Close()

	resp, err := http.Get(httpSrv.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	waitForClients(t, ts.Hub(), 1)
	ts.Broadcast(Event{Type: "task", Data: map[string]string{"task_id": "abc"}})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "event: task\n" {
		t.Errorf("event line = %q", line)
	}
	line, _ = reader.ReadString('\n')
	if !strings.HasPrefix(line, "data: ") || !strings.Contains(line, `"task_id":"abc"`) {
		t.Errorf("data line = %q", line)
	}
}

func TestWebSocketStream(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.Hub().Run(ctx)

	httpSrv := httptest.NewServer(ts.Handler())
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	waitForClients(t, ts.Hub(), 1)
	ts.Broadcast(Event{Type: "validation_started", Data: map[string]int{"pid": 42}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "validation_started" || ev.Data["pid"] != 42 {
		t.Errorf("event = %+v", ev)
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for range clientBuffer + 1 {
		hub.Broadcast(Event{Type: "tick"})
	}
	waitForClients(t, hub, 0)

	n := 0
	for range events {
		n++
	}
	if n != clientBuffer {
		t.Errorf("delivered %d events before drop, want %d", n, clientBuffer)
	}
}

func TestHub_SubscribeAfterStop(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	events, unsubscribe := hub.Subscribe()
	unsubscribe()
	if _, ok := <-events; ok {
		t.Error("expected closed channel after stop")
	}
}

func TestTaskEventsReachHub(t *testing.T) {
	ts := newTestServer(t)
	ts.tasks.SetListener(func(task *domain.AsyncTask) {
		ts.Broadcast(Event{Type: "task", Data: task})
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.Hub().Run(ctx)

	events, unsubscribe := ts.Hub().Subscribe()
	defer unsubscribe()

	id := ts.tasks.CreateTask("validate", nil)
	select {
	case ev := <-events:
		task, ok := ev.Data.(*domain.AsyncTask)
		if ev.Type != "task" || !ok || task.TaskID != id {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no task event")
	}
}
