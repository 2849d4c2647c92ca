package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/observer"
	"github.com/hochfrequenz/lintgate/internal/procmgr"
)

var (
	statusWait        bool
	statusWaitTimeout time.Duration
	historyLimit      int
	cleanLastRun      bool
	cleanMaxAgeDays   int
)

func init() {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show running validations and the last result",
		RunE:  runStatus,
	}
	statusCmd.Flags().BoolVar(&statusWait, "wait", false, "block until running validations finish")
	statusCmd.Flags().DurationVar(&statusWaitTimeout, "timeout", 10*time.Minute, "give up waiting after this long")
	rootCmd.AddCommand(statusCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent validation runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "number of runs to show (default from config)")
	rootCmd.AddCommand(historyCmd)

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove old runs and tasks and reap finished children",
		RunE:  runClean,
	}
	cleanCmd.Flags().BoolVar(&cleanLastRun, "last-run", false, "also forget the last run so the commit gate passes")
	cleanCmd.Flags().IntVar(&cleanMaxAgeDays, "max-age-days", 0, "remove runs older than this (default from config)")
	rootCmd.AddCommand(cleanCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	running := a.procs.RunningValidations()
	if statusWait && len(running) > 0 {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, statusWaitTimeout)
		defer cancel()

		fmt.Fprintf(out, "Waiting for %d validation(s)...\n", len(running))
		if err := waitForValidations(ctx, a.procs); err != nil {
			return err
		}
		running = a.procs.RunningValidations()
	}

	printRunning(out, running, time.Now())
	printLastRun(out, a.procs.LastRun(), time.Now())
	return nil
}

// waitForValidations returns once no live PID markers remain. Marker
// removals wake it up early; the ticker covers children that died without
// cleaning up.
func waitForValidations(ctx context.Context, procs *procmgr.Manager) error {
	wake := make(chan struct{}, 1)
	rw, err := observer.NewRunWatcher(procs.RunsDir(), func(events []observer.Event) {
		select {
		case wake <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		return err
	}
	rw.Start(ctx)
	defer rw.Stop()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for len(procs.RunningValidations()) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for validations: %w", ctx.Err())
		case <-wake:
		case <-ticker.C:
		}
	}
	return nil
}

func printRunning(w io.Writer, running []domain.PIDMarker, now time.Time) {
	if len(running) == 0 {
		fmt.Fprintln(w, "No validations running")
		return
	}
	fmt.Fprintf(w, "Running validations: %d\n", len(running))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PID\tRUN\tFILES\tSTARTED")
	for _, m := range running {
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%s\n", m.PID, m.RunID, len(m.Files), humanize.RelTime(m.Started, now, "ago", "from now"))
	}
	tw.Flush()
}

func printLastRun(w io.Writer, run *domain.ValidationRun, now time.Time) {
	if run == nil {
		fmt.Fprintln(w, "No previous run")
		return
	}
	state := "running"
	when := humanize.RelTime(run.Started, now, "ago", "from now")
	if run.IsCompleted() {
		state = "passed"
		if !run.Success {
			state = "FAILED"
		}
		when = humanize.RelTime(*run.Completed, now, "ago", "from now")
	}
	fmt.Fprintf(w, "Last run %s: %s %s (%d errors, %d warnings, %s)\n",
		run.RunID, state, when, run.Errors, run.Warnings, run.Elapsed(now).Round(time.Millisecond))
	for _, detail := range run.ErrorDetails {
		fmt.Fprintf(w, "  ✗ %s\n", detail)
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	limit := historyLimit
	if limit <= 0 {
		limit = a.cfg.Runs.HistoryLimit
	}

	runs := a.procs.RunHistory(limit)
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tRESULT\tWHEN\tDURATION\tERRORS\tWARNINGS\tTOOLS")
	for _, run := range runs {
		result := "running"
		if run.IsCompleted() {
			result = "passed"
			if !run.Success {
				result = "failed"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			run.RunID, result,
			humanize.RelTime(run.Started, now, "ago", "from now"),
			run.Elapsed(now).Round(time.Millisecond),
			run.Errors, run.Warnings,
			strings.Join(run.ToolsRun, ","))
	}
	return tw.Flush()
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	days := cleanMaxAgeDays
	if days <= 0 {
		days = a.cfg.Runs.MaxAgeDays
	}
	reaped := a.procs.CleanupZombies()
	runs := a.procs.CleanupOldRuns(days)

	tm, closeTasks, err := a.taskManager()
	if err != nil {
		return err
	}
	defer closeTasks()
	tasks := tm.CleanupOldTasks(a.taskMaxAge())

	if cleanLastRun {
		if err := a.procs.ClearLastRun(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Cleared last run")
	}
	fmt.Fprintf(out, "Removed %s run(s) older than %d days, %s task(s); reaped %d child process(es)\n",
		humanize.Comma(int64(runs)), days, humanize.Comma(int64(tasks)), reaped)
	return nil
}
