package procmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/fsutil"
)

// SaveRun writes runs/{run_id}.json and refreshes last_run.json with the
// same content.
func (m *Manager) SaveRun(run *domain.ValidationRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run has no id")
	}
	if err := fsutil.WriteJSON(m.runPath(run.RunID), run); err != nil {
		return fmt.Errorf("saving run %s: %w", run.RunID, err)
	}
	if err := fsutil.WriteJSON(m.lastRunPath(), run); err != nil {
		return fmt.Errorf("updating last run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run, or nil if there is none or it
// cannot be read.
func (m *Manager) LastRun() *domain.ValidationRun {
	var run domain.ValidationRun
	if err := fsutil.ReadJSON(m.lastRunPath(), &run); err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to read last run", "error", err)
		}
		return nil
	}
	return &run
}

// ClearLastRun removes the last_run pointer so the commit gate stops firing
func (m *Manager) ClearLastRun() error {
	return fsutil.RemoveIfExists(m.lastRunPath())
}

// CheckPreviousRun returns the last run only if it completed and failed
func (m *Manager) CheckPreviousRun() *domain.ValidationRun {
	run := m.LastRun()
	if run == nil || run.Success || !run.IsCompleted() {
		return nil
	}
	return run
}

// GetRun loads one run record by id
func (m *Manager) GetRun(runID string) (*domain.ValidationRun, error) {
	var run domain.ValidationRun
	if err := fsutil.ReadJSON(m.runPath(runID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

type runFile struct {
	path    string
	modTime time.Time
}

// runFiles lists run records, newest first, excluding the last_run pointer
func (m *Manager) runFiles() ([]runFile, error) {
	entries, err := os.ReadDir(m.opts.RunsDir)
	if err != nil {
		return nil, err
	}
	var files []runFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == lastRunFile || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, runFile{path: filepath.Join(m.opts.RunsDir, name), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path > files[j].path
		}
		return files[i].modTime.After(files[j].modTime)
	})
	return files, nil
}

// RunHistory returns up to limit runs, most recently modified first.
// limit <= 0 returns every run.
func (m *Manager) RunHistory(limit int) []*domain.ValidationRun {
	files, err := m.runFiles()
	if err != nil {
		m.logger.Warn("failed to list runs", "error", err)
		return nil
	}

	var runs []*domain.ValidationRun
	for _, f := range files {
		if limit > 0 && len(runs) >= limit {
			break
		}
		var run domain.ValidationRun
		if err := fsutil.ReadJSON(f.path, &run); err != nil {
			m.logger.Debug("skipping unreadable run", "path", f.path, "error", err)
			continue
		}
		runs = append(runs, &run)
	}
	return runs
}

// CleanupOldRuns deletes run records and run logs last modified more than
// maxAgeDays ago. The last_run pointer is kept. It returns the number of
// run records removed.
func (m *Manager) CleanupOldRuns(maxAgeDays int) int {
	cutoff := m.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)

	files, err := m.runFiles()
	if err != nil {
		m.logger.Warn("failed to list runs", "error", err)
		return 0
	}

	removed := 0
	for _, f := range files {
		if !f.modTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			m.logger.Warn("failed to remove run", "path", f.path, "error", err)
			continue
		}
		removed++
	}

	logs, _ := os.ReadDir(m.logsDir)
	for _, entry := range logs {
		info, err := entry.Info()
		if err != nil || entry.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(m.logsDir, entry.Name()))
	}

	if removed > 0 {
		m.logger.Info("cleaned up old runs", "removed", removed, "max_age_days", maxAgeDays)
	}
	return removed
}
