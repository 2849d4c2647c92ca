package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

// ToolProgressMsg carries one executor progress callback
type ToolProgressMsg struct {
	Tool     string
	Status   domain.ToolStatus
	Errors   int
	Warnings int
	At       time.Time
}

// DoneMsg is sent when the validation finished
type DoneMsg struct {
	Run     *domain.ValidationRun
	Summary domain.ResultsSummary
	Err     error
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.now = time.Time(msg)
		m.frame++
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case ToolProgressMsg:
		m.applyProgress(msg)

	case DoneMsg:
		m.done = true
		m.run = msg.Run
		m.summary = msg.Summary
		m.err = msg.Err
		m.now = time.Now()
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) applyProgress(msg ToolProgressMsg) {
	row, ok := m.rows[msg.Tool]
	// terminal states are final; a late "running" never rewinds a row
	if !ok || row.Status.IsTerminal() {
		return
	}
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}

	row.Status = msg.Status
	row.Errors = msg.Errors
	row.Warnings = msg.Warnings
	switch {
	case msg.Status == domain.ToolRunning:
		row.Started = at
	case msg.Status.IsTerminal() && !row.Started.IsZero():
		row.Duration = at.Sub(row.Started)
	}
}
