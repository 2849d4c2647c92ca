// Package procmgr runs validations in detached child processes so a git hook
// can return immediately, and gates later commits on the outcome.
//
// Layout under the runs directory:
//
//	runs/{run_id}.json     completed ValidationRun
//	runs/last_run.json     copy of the most recent run
//	runs/pids/{pid}.json   PID marker of a live child
//	runs/logs/{run_id}.log child stdout and stderr
package procmgr

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

const (
	// DefaultChildCommand is the hidden subcommand the child is started with
	DefaultChildCommand = "__child"

	lastRunFile = "last_run.json"
)

// Options configures a Manager
type Options struct {
	RunsDir    string
	ResultsDir string

	// Executable is re-executed as the child; defaults to the running binary
	Executable   string
	ChildCommand string
	Env          []string

	// Stdin and Stdout carry the interactive override prompt
	Stdin       io.Reader
	Stdout      io.Writer
	Interactive func() bool

	// OnComplete is called in the child once the run has been saved
	OnComplete func(run *domain.ValidationRun, logPath string)

	Logger *slog.Logger
}

// Manager forks, tracks and gates validation runs. A Manager is safe for
// concurrent use; state shared with other processes lives on disk and is
// only advisory.
type Manager struct {
	opts    Options
	logger  *slog.Logger
	pidsDir string
	logsDir string
	now     func() time.Time

	mu       sync.Mutex
	children map[int]struct{}
}

// New creates the runs directory tree
func New(opts Options) (*Manager, error) {
	if opts.RunsDir == "" {
		return nil, fmt.Errorf("runs directory is required")
	}
	if opts.ResultsDir == "" {
		opts.ResultsDir = filepath.Join(filepath.Dir(opts.RunsDir), "results")
	}
	if opts.ChildCommand == "" {
		opts.ChildCommand = DefaultChildCommand
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Interactive == nil {
		opts.Interactive = stdioIsTerminal
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Manager{
		opts:     opts,
		logger:   opts.Logger,
		pidsDir:  filepath.Join(opts.RunsDir, "pids"),
		logsDir:  filepath.Join(opts.RunsDir, "logs"),
		now:      time.Now,
		children: make(map[int]struct{}),
	}
	for _, dir := range []string{opts.RunsDir, m.pidsDir, m.logsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return m, nil
}

// RunsDir returns the directory holding run records
func (m *Manager) RunsDir() string {
	return m.opts.RunsDir
}

// PIDsDir returns the directory holding PID markers
func (m *Manager) PIDsDir() string {
	return m.pidsDir
}

// LogPath returns the log file of a run
func (m *Manager) LogPath(runID string) string {
	return filepath.Join(m.logsDir, runID+".log")
}

func (m *Manager) runPath(runID string) string {
	return filepath.Join(m.opts.RunsDir, runID+".json")
}

func (m *Manager) lastRunPath() string {
	return filepath.Join(m.opts.RunsDir, lastRunFile)
}

func (m *Manager) markerPath(pid int) string {
	return filepath.Join(m.pidsDir, fmt.Sprintf("%d.json", pid))
}

func (m *Manager) resultsPath(runID string) string {
	return filepath.Join(m.opts.ResultsDir, runID+"_results.json")
}

func stdioIsTerminal() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
