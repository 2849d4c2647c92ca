package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/executor"
	"github.com/hochfrequenz/lintgate/internal/procmgr"
	"github.com/hochfrequenz/lintgate/internal/validation"
	"github.com/hochfrequenz/lintgate/tui"
)

var (
	validateTUI        bool
	validateFailFast   bool
	validateWorkers    int
	validateBackground bool
)

func init() {
	validateCmd := &cobra.Command{
		Use:   "validate [FILE...]",
		Short: "Run all configured tools over the given files",
		RunE:  runValidate,
	}
	validateCmd.Flags().BoolVar(&validateTUI, "tui", false, "show live progress in a terminal UI")
	validateCmd.Flags().BoolVar(&validateFailFast, "fail-fast", false, "skip remaining levels after a failure")
	validateCmd.Flags().IntVar(&validateWorkers, "workers", 0, "maximum tools running at once (default: CPU count - 1)")
	validateCmd.Flags().BoolVar(&validateBackground, "background", false, "validate in a detached process and return immediately")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if validateBackground {
		_, err := a.fork(cmd.OutOrStdout(), args)
		return err
	}

	eng, err := a.engine()
	if err != nil {
		return err
	}
	opts := validation.Options{FailFast: validateFailFast, MaxWorkers: validateWorkers}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rep *validation.Report
	if validateTUI && isatty.IsTerminal(os.Stdout.Fd()) {
		rep, err = runWithTUI(ctx, eng, args, opts)
	} else {
		rep, err = eng.Run(ctx, args, opts, printProgress(cmd.OutOrStdout()))
	}
	if rep == nil {
		return err
	}
	if err != nil {
		a.logger.Warn("results not written", "error", err)
	}

	// A detached child saves its own run record once this process exits.
	if os.Getenv(procmgr.RunIDEnv) == "" {
		if err := a.procs.SaveRun(rep.Run); err != nil {
			a.logger.Warn("failed to save run", "error", err)
		}
	}

	printSummary(cmd.OutOrStdout(), rep)
	if !rep.Run.Success {
		return exitError{code: 1}
	}
	return nil
}

// printProgress writes one line per finished tool
func printProgress(w io.Writer) executor.ProgressFunc {
	return func(tool string, status domain.ToolStatus, errs, warns int) {
		if !status.IsTerminal() {
			return
		}
		fmt.Fprintf(w, "  %s %-12s %s", statusMark(status), tool, status)
		if errs > 0 || warns > 0 {
			fmt.Fprintf(w, " (%d errors, %d warnings)", errs, warns)
		}
		fmt.Fprintln(w)
	}
}

func statusMark(status domain.ToolStatus) string {
	switch status {
	case domain.ToolSuccess:
		return "✓"
	case domain.ToolSkipped:
		return "-"
	case domain.ToolTimeout:
		return "⏱"
	default:
		return "✗"
	}
}

func printSummary(w io.Writer, rep *validation.Report) {
	s := rep.Summary
	fmt.Fprintf(w, "\nRun %s: %d passed, %d failed, %d timed out, %d skipped (%d errors, %d warnings)\n",
		rep.Run.RunID, s.Passed, s.Failed, s.TimedOut, s.Skipped, s.Errors, s.Warnings)
	for _, detail := range rep.Run.ErrorDetails {
		fmt.Fprintf(w, "  ✗ %s\n", detail)
	}
	if rep.ResultsPath != "" {
		fmt.Fprintf(w, "Results: %s\n", rep.ResultsPath)
	}
}

func runWithTUI(ctx context.Context, eng *validation.Engine, files []string, opts validation.Options) (*validation.Report, error) {
	plan, err := eng.Executor(opts).ExecutionPlan()
	if err != nil {
		return nil, err
	}
	levels := make([][]string, len(plan))
	for i, level := range plan {
		levels[i] = level.Tools
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.NewModel(tui.ModelConfig{
		Levels: levels,
		Files:  len(files),
		Cancel: cancel,
	}), tea.WithAltScreen())

	var (
		rep    *validation.Report
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		rep, runErr = eng.Run(ctx, files, opts, tui.ProgressFunc(p))
		msg := tui.DoneMsg{Err: runErr}
		if rep != nil {
			msg.Run = rep.Run
			msg.Summary = rep.Summary
		}
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return rep, fmt.Errorf("running TUI: %w", err)
	}
	<-done
	return rep, runErr
}
