package procmgr

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/fsutil"
)

func (m *Manager) writeMarker(marker domain.PIDMarker) error {
	return fsutil.WriteJSON(m.markerPath(marker.PID), marker)
}

func (m *Manager) removeMarker(pid int) {
	if err := fsutil.RemoveIfExists(m.markerPath(pid)); err != nil {
		m.logger.Warn("failed to remove pid marker", "pid", pid, "error", err)
	}
}

// RunningValidations returns markers whose process is still alive, oldest
// first. Markers of dead processes and unreadable markers are removed.
func (m *Manager) RunningValidations() []domain.PIDMarker {
	m.CleanupZombies()

	entries, err := os.ReadDir(m.pidsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to read pid markers", "error", err)
		}
		return nil
	}

	var live []domain.PIDMarker
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(m.pidsDir, name)

		pid, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}

		var marker domain.PIDMarker
		if err := fsutil.ReadJSON(path, &marker); err != nil || marker.PID != pid {
			m.logger.Debug("removing unreadable pid marker", "path", path)
			_ = os.Remove(path)
			continue
		}
		if !processAlive(pid) {
			m.logger.Debug("pruning stale pid marker", "pid", pid, "run_id", marker.RunID)
			m.removeMarker(pid)
			markersPruned.Inc()
			continue
		}
		live = append(live, marker)
	}

	sort.Slice(live, func(i, j int) bool { return live[i].Started.Before(live[j].Started) })
	return live
}

// CleanupZombies reaps children this manager spawned that have exited and
// removes their markers. It never blocks and returns the number reaped.
//
// Only tracked pids are waited on; a wait on any child would also collect
// tool subprocesses that os/exec is still waiting for in this process.
func (m *Manager) CleanupZombies() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	reaped := 0
	for pid := range m.children {
		ok, gone := reap(pid)
		if !ok && !gone {
			continue
		}
		delete(m.children, pid)
		if ok {
			reaped++
			zombiesReaped.Inc()
			m.logger.Debug("reaped validation child", "pid", pid)
		}
		m.removeMarker(pid)
	}
	return reaped
}

func (m *Manager) track(pid int) {
	m.mu.Lock()
	m.children[pid] = struct{}{}
	m.mu.Unlock()
}

// Children returns the number of spawned children not yet reaped
func (m *Manager) Children() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children)
}
