package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/logging"
	"github.com/hochfrequenz/lintgate/internal/procmgr"
	"github.com/hochfrequenz/lintgate/internal/taskmgr"
	"github.com/hochfrequenz/lintgate/internal/taskstore"
	"github.com/hochfrequenz/lintgate/internal/validation"
)

// app is the composition root shared by every command
type app struct {
	cfg    *config.Config
	root   string
	logger *slog.Logger
	procs  *procmgr.Manager
}

// configEnv carries the resolved config path into the detached child
const configEnv = "LINTGATE_CONFIG"

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	return cfg, nil
}

func resolveRoot() (string, error) {
	if repoRoot != "" {
		return filepath.Abs(repoRoot)
	}
	return os.Getwd()
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.General.LogLevel)

	procs, err := procmgr.New(procmgr.Options{
		RunsDir:    cfg.RunsDir(),
		ResultsDir: cfg.ResultsDir(),
		Env:        []string{configEnv + "=" + resolvedConfigPath()},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, root: root, logger: logger, procs: procs}, nil
}

// engine loads the project's tool configuration and validates its graph
func (a *app) engine() (*validation.Engine, error) {
	project, err := config.LoadProject(a.root)
	if err != nil {
		return nil, err
	}
	return validation.New(a.cfg, project, a.logger)
}

// taskManager opens the configured task backend. The returned func closes
// the backend.
func (a *app) taskManager() (*taskmgr.Manager, func(), error) {
	var (
		store   taskmgr.Store
		closeFn = func() {}
	)
	switch a.cfg.Tasks.Backend {
	case "", "file":
		fs, err := taskmgr.NewFileStore(a.cfg.TasksDir())
		if err != nil {
			return nil, nil, err
		}
		store = fs
	case "sqlite":
		path := a.cfg.TaskDatabasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, err
		}
		db, err := taskstore.New(path)
		if err != nil {
			return nil, nil, err
		}
		store = db
		closeFn = func() { db.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown task backend %q", a.cfg.Tasks.Backend)
	}

	tm, err := taskmgr.New(store, a.logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return tm, closeFn, nil
}

// taskMaxAge is how long finished tasks are kept
func (a *app) taskMaxAge() time.Duration {
	hours := a.cfg.Tasks.MaxAgeHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}
