package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/lintgate/internal/maintenance"
	"github.com/hochfrequenz/lintgate/internal/observer"
	"github.com/hochfrequenz/lintgate/web/api"
)

var (
	serveHost string
	servePort int
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and run periodic maintenance",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveHost, "host", "", "address to bind (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func serveAddr(a *app) string {
	host, port := a.cfg.Serve.Host, a.cfg.Serve.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort > 0 {
		port = servePort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	tm, closeTasks, err := a.taskManager()
	if err != nil {
		return err
	}
	defer closeTasks()

	// The API still serves tasks and runs without a valid tool config.
	eng, err := a.engine()
	if err != nil {
		a.logger.Warn("validation disabled", "error", err)
	}

	jobs := maintenance.DefaultJobs(a.cfg.Serve.MaintenanceCron, a.procs, a.cfg.Runs.MaxAgeDays, tm, a.taskMaxAge())
	sched, err := maintenance.NewScheduler(jobs, a.logger)
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()
	defer wg.Wait()

	srv := api.NewServer(api.Options{
		Addr:        serveAddr(a),
		Tasks:       tm,
		Runs:        a.procs,
		Engine:      eng,
		Observer:    observer.New(5 * time.Minute),
		Maintenance: sched,
		Logger:      a.logger,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", serveAddr(a))
	err = srv.Start(ctx)
	stop()
	return err
}
