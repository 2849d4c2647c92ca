package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	levelHeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39"))

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("lintgate"))
	b.WriteString(headerStyle.Render(m.header()))
	b.WriteString("\n\n")

	var sections []string
	for i, level := range m.levels {
		sections = append(sections, m.renderLevel(i, level))
	}
	if len(sections) > 0 {
		b.WriteString(sectionStyle.Render(strings.Join(sections, "\n\n")))
		b.WriteString("\n")
	}

	b.WriteString(m.renderFooter())
	b.WriteString("\n")
	return b.String()
}

func (m Model) header() string {
	parts := []string{}
	if m.runID != "" {
		parts = append(parts, "run "+m.runID)
	}
	parts = append(parts, humanize.Comma(int64(m.files))+" files")
	parts = append(parts, m.elapsed().Round(100*time.Millisecond).String())
	return strings.Join(parts, " · ")
}

func (m Model) elapsed() time.Duration {
	if m.run != nil && m.run.Completed != nil {
		return m.run.Elapsed(*m.run.Completed)
	}
	return m.now.Sub(m.started)
}

func (m Model) renderLevel(i int, level []string) string {
	lines := []string{levelHeaderStyle.Render(fmt.Sprintf("Level %d", i))}
	for _, name := range level {
		lines = append(lines, m.renderRow(m.rows[name]))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(row *ToolRow) string {
	icon, style := m.statusIcon(row.Status)
	line := fmt.Sprintf("%s %-14s %-8s", icon, row.Name, row.Status)

	var details []string
	if row.Errors > 0 {
		details = append(details, failedStyle.Render(fmt.Sprintf("%d errors", row.Errors)))
	}
	if row.Warnings > 0 {
		details = append(details, warningStyle.Render(fmt.Sprintf("%d warnings", row.Warnings)))
	}
	switch {
	case row.Duration > 0:
		details = append(details, dimmedStyle.Render(row.Duration.Round(10*time.Millisecond).String()))
	case row.Status == domain.ToolRunning && !row.Started.IsZero():
		details = append(details, dimmedStyle.Render(m.now.Sub(row.Started).Round(100*time.Millisecond).String()))
	}

	return style.Render(line) + " " + strings.Join(details, " ")
}

func (m Model) statusIcon(status domain.ToolStatus) (string, lipgloss.Style) {
	switch status {
	case domain.ToolRunning:
		return spinnerFrames[m.frame%len(spinnerFrames)], runningStyle
	case domain.ToolSuccess:
		return "✓", successStyle
	case domain.ToolFailed:
		return "✗", failedStyle
	case domain.ToolTimeout:
		return "⏱", failedStyle
	case domain.ToolSkipped:
		return "-", dimmedStyle
	default:
		return "·", dimmedStyle
	}
}

func (m Model) renderFooter() string {
	if m.err != nil {
		return failedStyle.Render("Error: " + m.err.Error())
	}
	if !m.done {
		finished := 0
		for _, row := range m.rows {
			if row.Status.IsTerminal() {
				finished++
			}
		}
		text := fmt.Sprintf(" %d/%d tools finished  •  q: quit ", finished, len(m.rows))
		return statusBarStyle.Render(text)
	}

	s := m.summary
	text := fmt.Sprintf("%d passed, %d failed, %d skipped, %d timed out  •  %d errors, %d warnings",
		s.Passed, s.Failed, s.Skipped, s.TimedOut, s.Errors, s.Warnings)
	if m.run != nil && !m.run.Success {
		return failedStyle.Render("✗ Validation failed: " + text)
	}
	return successStyle.Render("✓ Validation passed: " + text)
}
