// MCP server exposing async validation and run history over stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/logging"
	"github.com/hochfrequenz/lintgate/internal/mcp"
	"github.com/hochfrequenz/lintgate/internal/procmgr"
	"github.com/hochfrequenz/lintgate/internal/taskmgr"
	"github.com/hochfrequenz/lintgate/internal/taskstore"
	"github.com/hochfrequenz/lintgate/internal/validation"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "config file path")
	repo := flag.String("repo", "", "repository root (default: current directory)")
	flag.Parse()

	if err := run(*configPath, *repo); err != nil {
		fmt.Fprintf(os.Stderr, "lintgate-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, repo string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr
	logger := logging.New(os.Stderr, cfg.General.LogLevel)

	if repo == "" {
		if repo, err = os.Getwd(); err != nil {
			return err
		}
	}

	svc, closeFn, err := newServices(cfg, repo, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer("lintgate", version, logger)
	svc.register(srv)
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}

// services is what the tools operate on
type services struct {
	cfg    *config.Config
	tasks  *taskmgr.Manager
	procs  *procmgr.Manager
	engine *validation.Engine
	logger *slog.Logger

	// baseCtx scopes background validations to the server's lifetime
	baseCtx context.Context
}

func newServices(cfg *config.Config, repo string, logger *slog.Logger) (*services, func(), error) {
	procs, err := procmgr.New(procmgr.Options{
		RunsDir:    cfg.RunsDir(),
		ResultsDir: cfg.ResultsDir(),
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		store   taskmgr.Store
		closeFn = func() {}
	)
	if cfg.Tasks.Backend == "sqlite" {
		path := cfg.TaskDatabasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, err
		}
		db, err := taskstore.New(path)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = db, func() { db.Close() }
	} else {
		fs, err := taskmgr.NewFileStore(cfg.TasksDir())
		if err != nil {
			return nil, nil, err
		}
		store = fs
	}
	tasks, err := taskmgr.New(store, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	svc := &services{cfg: cfg, tasks: tasks, procs: procs, logger: logger, baseCtx: context.Background()}
	project, err := config.LoadProject(repo)
	if err == nil {
		svc.engine, err = validation.New(cfg, project, logger)
	}
	if err != nil {
		logger.Warn("validate_async disabled", "error", err)
	}
	return svc, closeFn, nil
}
