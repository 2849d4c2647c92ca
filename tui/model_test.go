package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

func exampleModel() Model {
	return NewModel(ModelConfig{
		Levels: [][]string{{"black", "isort"}, {"mypy", "flake8"}},
		Files:  3,
		RunID:  "20260101-120000.000000",
	})
}

func send(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestNewModel(t *testing.T) {
	model := exampleModel()

	if len(model.rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(model.rows))
	}
	row, ok := model.Row("mypy")
	if !ok {
		t.Fatal("mypy row missing")
	}
	if row.Level != 1 || row.Status != domain.ToolPending {
		t.Errorf("mypy row = %+v", row)
	}
	if model.Done() {
		t.Error("new model should not be done")
	}
}

func TestModel_ProgressUpdatesRows(t *testing.T) {
	model := exampleModel()
	start := time.Now()

	model = send(model, ToolProgressMsg{Tool: "black", Status: domain.ToolRunning, At: start})
	row, _ := model.Row("black")
	if row.Status != domain.ToolRunning {
		t.Errorf("black status = %s, want running", row.Status)
	}

	model = send(model, ToolProgressMsg{Tool: "black", Status: domain.ToolFailed, Errors: 2, At: start.Add(1500 * time.Millisecond)})
	row, _ = model.Row("black")
	if row.Status != domain.ToolFailed || row.Errors != 2 {
		t.Errorf("black row = %+v", row)
	}
	if row.Duration != 1500*time.Millisecond {
		t.Errorf("black duration = %v, want 1.5s", row.Duration)
	}
}

func TestModel_TerminalStatusIsFinal(t *testing.T) {
	model := exampleModel()
	model = send(model, ToolProgressMsg{Tool: "mypy", Status: domain.ToolSkipped})
	model = send(model, ToolProgressMsg{Tool: "mypy", Status: domain.ToolRunning})

	row, _ := model.Row("mypy")
	if row.Status != domain.ToolSkipped {
		t.Errorf("mypy status = %s, want skipped", row.Status)
	}
}

func TestModel_IgnoresUnknownTools(t *testing.T) {
	model := exampleModel()
	model = send(model, ToolProgressMsg{Tool: "pylint", Status: domain.ToolRunning})

	if _, ok := model.Row("pylint"); ok {
		t.Error("unknown tool should not get a row")
	}
}

func TestModel_DoneQuits(t *testing.T) {
	model := exampleModel()
	run := domain.NewValidationRun("r1", nil, time.Now())
	run.Complete(0, time.Now())

	next, cmd := model.Update(DoneMsg{Run: run, Summary: domain.ResultsSummary{Total: 4, Passed: 4}})
	model = next.(Model)

	if !model.Done() {
		t.Error("model should be done")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("done should quit the program")
	}
	if !strings.Contains(model.View(), "Validation passed") {
		t.Error("view should show the passing summary")
	}
}

func TestModel_QuitCancelsRun(t *testing.T) {
	cancelled := false
	model := NewModel(ModelConfig{
		Levels: [][]string{{"black"}},
		Cancel: func() { cancelled = true },
	})

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !cancelled {
		t.Error("quitting mid-run should cancel the validation")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestModel_View(t *testing.T) {
	model := exampleModel()
	model = send(model, tea.WindowSizeMsg{Width: 100, Height: 30})
	model = send(model, ToolProgressMsg{Tool: "isort", Status: domain.ToolSuccess, Warnings: 1})

	view := model.View()
	for _, want := range []string{"lintgate", "Level 0", "Level 1", "isort", "1 warnings", "1/4 tools finished"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_ViewShowsError(t *testing.T) {
	model := exampleModel()
	model = send(model, DoneMsg{Err: errors.New("dependency cycle")})

	if !strings.Contains(model.View(), "dependency cycle") {
		t.Error("view should show the error")
	}
}

type recordingSender struct{ msgs []tea.Msg }

func (r *recordingSender) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func TestProgressFunc(t *testing.T) {
	rec := &recordingSender{}
	ProgressFunc(rec)("ruff", domain.ToolFailed, 3, 1)

	if len(rec.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(rec.msgs))
	}
	msg, ok := rec.msgs[0].(ToolProgressMsg)
	if !ok || msg.Tool != "ruff" || msg.Errors != 3 || msg.Warnings != 1 {
		t.Errorf("message = %#v", rec.msgs[0])
	}
}
