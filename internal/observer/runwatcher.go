package observer

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventKind classifies a change under the runs directory
type EventKind string

const (
	// ValidationStarted fires when a PID marker appears
	ValidationStarted EventKind = "validation_started"
	// ValidationFinished fires when a PID marker is removed
	ValidationFinished EventKind = "validation_finished"
	// RunSaved fires when a run record is written
	RunSaved EventKind = "run_saved"
)

// Event is one debounced change
type Event struct {
	Kind  EventKind `json:"kind"`
	RunID string    `json:"run_id,omitempty"`
	PID   int       `json:"pid,omitempty"`
	Path  string    `json:"path"`
}

// RunChangeCallback receives the changes collected during one debounce window
type RunChangeCallback func(events []Event)

// RunWatcher monitors runs/ and runs/pids/ for changes
type RunWatcher struct {
	watcher  *fsnotify.Watcher
	callback RunChangeCallback
	debounce time.Duration
	runsDir  string
	pidsDir  string
	logger   *slog.Logger

	// Debounce state, keyed by kind and path
	pending map[string]Event
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewRunWatcher watches runsDir and its pids subdirectory. Both must exist.
func NewRunWatcher(runsDir string, callback RunChangeCallback, logger *slog.Logger) (*RunWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	rw := &RunWatcher{
		watcher:  watcher,
		callback: callback,
		debounce: 200 * time.Millisecond,
		runsDir:  filepath.Clean(runsDir),
		pidsDir:  filepath.Join(filepath.Clean(runsDir), "pids"),
		logger:   logger,
		pending:  make(map[string]Event),
	}
	for _, dir := range []string{rw.runsDir, rw.pidsDir} {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return rw, nil
}

// Start begins watching for file changes
func (rw *RunWatcher) Start(ctx context.Context) {
	ctx, rw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-rw.watcher.Events:
				if !ok {
					return
				}
				rw.handleEvent(event)
			case err, ok := <-rw.watcher.Errors:
				if !ok {
					return
				}
				rw.logger.Warn("run watcher error", "error", err)
			}
		}
	}()
}

// Stop stops watching for file changes
func (rw *RunWatcher) Stop() {
	if rw.cancel != nil {
		rw.cancel()
	}
	rw.watcher.Close()

	rw.mu.Lock()
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.mu.Unlock()
}

// classify maps a raw fsnotify event to a run event
func (rw *RunWatcher) classify(event fsnotify.Event) (Event, bool) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
		return Event{}, false
	}
	stem := strings.TrimSuffix(name, ".json")

	switch filepath.Dir(event.Name) {
	case rw.pidsDir:
		pid, err := strconv.Atoi(stem)
		if err != nil {
			return Event{}, false
		}
		switch {
		case event.Op&fsnotify.Create != 0:
			return Event{Kind: ValidationStarted, PID: pid, Path: event.Name}, true
		case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
			return Event{Kind: ValidationFinished, PID: pid, Path: event.Name}, true
		}
	case rw.runsDir:
		if stem == "last_run" {
			return Event{}, false
		}
		if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
			return Event{Kind: RunSaved, RunID: stem, Path: event.Name}, true
		}
	}
	return Event{}, false
}

func (rw *RunWatcher) handleEvent(event fsnotify.Event) {
	ev, ok := rw.classify(event)
	if !ok {
		return
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pending[string(ev.Kind)+"|"+ev.Path] = ev

	// Reset or start debounce timer
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.timer = time.AfterFunc(rw.debounce, rw.flush)
}

func (rw *RunWatcher) flush() {
	rw.mu.Lock()
	pending := rw.pending
	rw.pending = make(map[string]Event)
	rw.mu.Unlock()

	if rw.callback == nil || len(pending) == 0 {
		return
	}

	events := make([]Event, 0, len(pending))
	for _, ev := range pending {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Kind != events[j].Kind {
			return events[i].Kind < events[j].Kind
		}
		return events[i].Path < events[j].Path
	})
	rw.callback(events)
}

// SetDebounce sets the debounce duration for batching file changes
func (rw *RunWatcher) SetDebounce(d time.Duration) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.debounce = d
}
