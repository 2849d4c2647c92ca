package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/executor"
)

// Model is the TUI application model for one validation run
type Model struct {
	// Data
	levels [][]string
	rows   map[string]*ToolRow
	files  int
	runID  string

	// Outcome
	done    bool
	run     *domain.ValidationRun
	summary domain.ResultsSummary
	err     error

	// UI state
	width    int
	height   int
	started  time.Time
	now      time.Time
	frame    int
	quitting bool
	cancel   context.CancelFunc
}

// ToolRow is one tool's line in the TUI
type ToolRow struct {
	Name     string
	Level    int
	Status   domain.ToolStatus
	Errors   int
	Warnings int
	Started  time.Time
	Duration time.Duration
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Levels [][]string
	Files  int
	RunID  string
	// Cancel is called when the user quits before the run finishes
	Cancel context.CancelFunc
}

// NewModel creates a new TUI model with every tool pending
func NewModel(cfg ModelConfig) Model {
	rows := make(map[string]*ToolRow)
	for i, level := range cfg.Levels {
		for _, name := range level {
			rows[name] = &ToolRow{Name: name, Level: i, Status: domain.ToolPending}
		}
	}
	now := time.Now()
	return Model{
		levels:  cfg.Levels,
		rows:    rows,
		files:   cfg.Files,
		runID:   cfg.RunID,
		started: now,
		now:     now,
		cancel:  cfg.Cancel,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// Done reports whether the run finished
func (m Model) Done() bool {
	return m.done
}

// Row returns the row of a tool
func (m Model) Row(name string) (ToolRow, bool) {
	row, ok := m.rows[name]
	if !ok {
		return ToolRow{}, false
	}
	return *row, true
}

// Sender is satisfied by *tea.Program
type Sender interface {
	Send(msg tea.Msg)
}

// ProgressFunc forwards executor progress into the program
func ProgressFunc(p Sender) executor.ProgressFunc {
	return func(tool string, status domain.ToolStatus, errors, warnings int) {
		p.Send(ToolProgressMsg{Tool: tool, Status: status, Errors: errors, Warnings: warnings, At: time.Now()})
	}
}
