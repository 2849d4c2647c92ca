package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	hookCmd := &cobra.Command{
		Use:   "hook",
		Short: "Git hook entry points",
	}
	preCommitCmd := &cobra.Command{
		Use:   "pre-commit [FILE...]",
		Short: "Block on a previous failure, then validate staged files in the background",
		Long: `pre-commit refuses the commit when the last background validation failed,
unless the user overrides it interactively. Otherwise it starts a new
validation of the staged files in a detached process and exits at once.`,
		RunE: runPreCommit,
	}
	hookCmd.AddCommand(preCommitCmd)
	rootCmd.AddCommand(hookCmd)
}

func runPreCommit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if !a.procs.ShouldProceedWithCommit() {
		return exitError{code: 1}
	}

	files := args
	if len(files) == 0 {
		files, err = stagedFiles(cmd.Context(), a.root)
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		a.logger.Debug("no staged files to validate")
		return nil
	}

	// The commit goes ahead even when the fork fails; the next commit
	// simply has no result to gate on.
	if _, err := a.fork(cmd.OutOrStdout(), files); err != nil {
		a.logger.Warn("could not start background validation", "error", err)
	}
	return nil
}

// fork re-runs this binary's validate command over files in a detached child
func (a *app) fork(w io.Writer, files []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return -1, fmt.Errorf("locating executable: %w", err)
	}
	pid, err := a.procs.ForkValidation(files, exe, validateArgs(a, files))
	if err != nil {
		return pid, err
	}
	if pid == 0 {
		fmt.Fprintln(w, "A validation of these files is already running")
	}
	return pid, nil
}

// validateArgs builds the argv the detached child hands to the validate command
func validateArgs(a *app, files []string) []string {
	args := []string{"validate", "--repo", a.root}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	args = append(args, "--")
	return append(args, files...)
}

// stagedFiles lists added, copied and modified files in the index
func stagedFiles(ctx context.Context, root string) ([]string, error) {
	git := exec.CommandContext(ctx, "git", "diff", "--cached", "--name-only", "--diff-filter=ACM", "-z")
	git.Dir = root
	var stderr bytes.Buffer
	git.Stderr = &stderr
	out, err := git.Output()
	if err != nil {
		return nil, fmt.Errorf("listing staged files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseNulList(out), nil
}

func parseNulList(out []byte) []string {
	var files []string
	for _, f := range strings.Split(string(out), "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}
