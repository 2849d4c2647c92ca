package procmgr

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

// maxShownDetails limits the error lines printed in the failure summary
const maxShownDetails = 5

// HandlePreviousFailure decides whether a commit may proceed despite a failed
// previous run. Without a terminal it refuses. With one it prints a summary
// and proceeds only on an explicit "y" or "yes", clearing the last run so
// the gate does not fire again.
func (m *Manager) HandlePreviousFailure(run *domain.ValidationRun) bool {
	out := m.opts.Stdout

	if !m.opts.Interactive() {
		fmt.Fprintf(out, "Commit blocked: the previous validation (run %s) failed with %d error(s).\n", run.RunID, run.Errors)
		fmt.Fprintf(out, "Fix the issues and run `lintgate validate`, or clear the gate with `lintgate clean --last-run`.\n")
		fmt.Fprintf(out, "Log: %s\n", m.LogPath(run.RunID))
		return false
	}

	when := "at an unknown time"
	if run.Completed != nil {
		when = humanize.RelTime(*run.Completed, m.now(), "ago", "from now")
	}
	fmt.Fprintf(out, "\nPrevious validation failed %s\n", when)
	fmt.Fprintf(out, "  Errors:    %d\n", run.Errors)
	fmt.Fprintf(out, "  Warnings:  %d\n", run.Warnings)
	if len(run.ToolsRun) > 0 {
		fmt.Fprintf(out, "  Tools run: %s\n", strings.Join(run.ToolsRun, ", "))
	}
	for i, detail := range run.ErrorDetails {
		if i == maxShownDetails {
			fmt.Fprintf(out, "    ... and %d more\n", len(run.ErrorDetails)-maxShownDetails)
			break
		}
		fmt.Fprintf(out, "    %s\n", detail)
	}
	fmt.Fprintf(out, "  Log:       %s\n\n", m.LogPath(run.RunID))
	fmt.Fprint(out, "Commit anyway? [y/N]: ")

	answer, _ := bufio.NewReader(m.opts.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		if err := m.ClearLastRun(); err != nil {
			m.logger.Warn("failed to clear last run", "error", err)
		}
		m.logger.Info("previous failure overridden", "run_id", run.RunID)
		return true
	}
	fmt.Fprintln(out, "Commit aborted.")
	return false
}

// ShouldProceedWithCommit reaps finished children, then consults the last run
func (m *Manager) ShouldProceedWithCommit() bool {
	m.CleanupZombies()
	run := m.CheckPreviousRun()
	if run == nil {
		return true
	}
	return m.HandlePreviousFailure(run)
}
