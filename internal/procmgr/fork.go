package procmgr

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

// ForkValidation starts cmd with args in a detached child process and
// returns without waiting for it.
//
// It returns the child pid, 0 if a live validation already covers any of
// files, or -1 with an error if the child could not be started.
func (m *Manager) ForkValidation(files []string, cmd string, args []string) (int, error) {
	for _, running := range m.RunningValidations() {
		if running.Overlaps(files) {
			m.logger.Info("validation already running for these files",
				"pid", running.PID, "run_id", running.RunID)
			forks.WithLabelValues("duplicate").Inc()
			return 0, nil
		}
	}

	exe := m.opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			forks.WithLabelValues("failed").Inc()
			return -1, fmt.Errorf("locating executable: %w", err)
		}
	}

	started := m.now()
	runID := m.uniqueRunID(started)
	logPath := m.LogPath(runID)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		forks.WithLabelValues("failed").Inc()
		return -1, fmt.Errorf("opening run log: %w", err)
	}
	defer logFile.Close()

	spec := ChildSpec{
		RunsDir:    m.opts.RunsDir,
		ResultsDir: m.opts.ResultsDir,
		RunID:      runID,
		Files:      files,
		Command:    cmd,
		Args:       args,
	}
	child := exec.Command(exe, append([]string{m.opts.ChildCommand}, ChildArgs(spec)...)...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.Env = append(os.Environ(), m.opts.Env...)
	detach(child)

	if err := child.Start(); err != nil {
		forks.WithLabelValues("failed").Inc()
		return -1, fmt.Errorf("starting validation child: %w", err)
	}
	pid := child.Process.Pid
	m.track(pid)
	_ = child.Process.Release()

	marker := domain.PIDMarker{PID: pid, RunID: runID, Files: files, Started: started}
	if err := m.writeMarker(marker); err != nil {
		m.logger.Warn("failed to write pid marker", "pid", pid, "error", err)
	}
	forks.WithLabelValues("started").Inc()

	fmt.Fprintf(m.opts.Stdout, "Validation running in background (PID %d)\nLog: %s\n", pid, logPath)
	m.logger.Debug("forked validation", "pid", pid, "run_id", runID, "files", len(files))
	return pid, nil
}

// uniqueRunID bumps the timestamp by a microsecond until no run or log
// with that id exists.
func (m *Manager) uniqueRunID(t time.Time) string {
	for {
		id := domain.NewRunID(t)
		_, errRun := os.Stat(m.runPath(id))
		_, errLog := os.Stat(m.LogPath(id))
		if os.IsNotExist(errRun) && os.IsNotExist(errLog) {
			return id
		}
		t = t.Add(time.Microsecond)
	}
}
