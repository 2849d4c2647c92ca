package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/logging"
	"github.com/hochfrequenz/lintgate/internal/notify"
	"github.com/hochfrequenz/lintgate/internal/procmgr"
)

func init() {
	childCmd := &cobra.Command{
		Use:                procmgr.DefaultChildCommand,
		Short:              "Run a detached validation (internal)",
		Hidden:             true,
		DisableFlagParsing: true,
		RunE:               runChild,
	}
	rootCmd.AddCommand(childCmd)
}

func runChild(cmd *cobra.Command, args []string) error {
	spec, err := procmgr.ParseChildArgs(args)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, os.Getenv("LINTGATE_LOG_LEVEL"))
	mgr, err := procmgr.New(procmgr.Options{
		RunsDir:    spec.RunsDir,
		ResultsDir: spec.ResultsDir,
		OnComplete: runNotifier(logger),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if code := mgr.RunChild(cmd.Context(), spec); code != 0 {
		return exitError{code: code}
	}
	return nil
}

// runNotifier reports the finished run as configured in the parent's config
func runNotifier(logger *slog.Logger) func(*domain.ValidationRun, string) {
	path := os.Getenv(configEnv)
	if path == "" {
		return nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Warn("notifications disabled", "config", path, "error", err)
		return nil
	}
	n := notify.FromConfig(cfg.Notify)
	return func(run *domain.ValidationRun, logPath string) {
		if err := n.Send(notify.FromRun(run, logPath)); err != nil {
			logger.Warn("notification failed", "run_id", run.RunID, "error", err)
		}
	}
}
