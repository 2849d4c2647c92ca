package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	repoRoot   string
	logLevel   string
	rootCmd    = &cobra.Command{
		Use:   "lintgate",
		Short: "lintgate - non-blocking validation for git commits",
		Long: `lintgate runs a project's linters and type checkers in dependency order,
in parallel where possible. As a pre-commit hook it validates in a detached
background process and blocks the next commit if that validation failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// exitError carries a process exit code without an error message
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo", "", "repository root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
