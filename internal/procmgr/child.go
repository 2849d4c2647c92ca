package procmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/pflag"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/fsutil"
)

// RunIDEnv tells the validation command which run it belongs to, so its
// results file can be matched to the run record.
const RunIDEnv = "LINTGATE_RUN_ID"

// ChildSpec is everything the detached child needs to run one validation
type ChildSpec struct {
	RunsDir    string
	ResultsDir string
	RunID      string
	Files      []string
	Command    string
	Args       []string
}

// ChildArgs renders spec as arguments to the child subcommand, without the
// subcommand itself.
func ChildArgs(spec ChildSpec) []string {
	files, _ := json.Marshal(spec.Files)
	args := []string{
		"--runs-dir", spec.RunsDir,
		"--results-dir", spec.ResultsDir,
		"--run-id", spec.RunID,
		"--files", string(files),
		"--", spec.Command,
	}
	return append(args, spec.Args...)
}

// ParseChildArgs is the inverse of ChildArgs
func ParseChildArgs(args []string) (ChildSpec, error) {
	var (
		spec  ChildSpec
		files string
	)
	fs := pflag.NewFlagSet("child", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&spec.RunsDir, "runs-dir", "", "runs directory")
	fs.StringVar(&spec.ResultsDir, "results-dir", "", "results directory")
	fs.StringVar(&spec.RunID, "run-id", "", "run id")
	fs.StringVar(&files, "files", "[]", "files as a JSON array")
	if err := fs.Parse(args); err != nil {
		return ChildSpec{}, err
	}

	if spec.RunsDir == "" || spec.RunID == "" {
		return ChildSpec{}, errors.New("--runs-dir and --run-id are required")
	}
	if err := json.Unmarshal([]byte(files), &spec.Files); err != nil {
		return ChildSpec{}, fmt.Errorf("--files: %w", err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return ChildSpec{}, errors.New("missing validation command")
	}
	spec.Command, spec.Args = rest[0], rest[1:]
	return spec, nil
}

// RunChild is the body of the detached child. It runs the validation
// command, persists the run and removes its own PID marker. The returned
// exit code is the command's, or 1 if the command could not be run.
// Stdout and stderr are expected to already point at the run log.
func (m *Manager) RunChild(ctx context.Context, spec ChildSpec) (exitCode int) {
	pid := os.Getpid()
	run := domain.NewValidationRun(spec.RunID, spec.Files, m.now())
	run.PID = pid

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "validation child crashed: %v\n", r)
			exitCode = 1
		}
		m.removeMarker(pid)
	}()

	fmt.Fprintf(os.Stdout, "[%s] run %s: %s %v (pid %d, %d files)\n",
		run.Started.Format("15:04:05"), spec.RunID, spec.Command, spec.Args, pid, len(spec.Files))

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), RunIDEnv+"="+spec.RunID)

	exitCode = 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			exitCode = exitErr.ExitCode()
		} else {
			fmt.Fprintf(os.Stderr, "validation command failed: %v\n", err)
			exitCode = 1
			run.ErrorDetails = append(run.ErrorDetails, err.Error())
			run.Errors = 1
		}
	}

	m.enrichFromResults(run)
	run.Complete(exitCode, m.now())

	result := "passed"
	if !run.Success {
		result = "failed"
	}
	runsCompleted.WithLabelValues(result).Inc()

	if err := m.SaveRun(run); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save run: %v\n", err)
	}
	if m.opts.OnComplete != nil {
		m.opts.OnComplete(run, m.LogPath(spec.RunID))
	}
	fmt.Fprintf(os.Stdout, "[%s] run %s %s (exit %d, %d errors, %d warnings)\n",
		m.now().Format("15:04:05"), spec.RunID, result, exitCode, run.Errors, run.Warnings)
	return exitCode
}

// enrichFromResults folds the per-tool results file, if the validation
// command wrote one, into the run record.
func (m *Manager) enrichFromResults(run *domain.ValidationRun) {
	var rf domain.ResultsFile
	if err := fsutil.ReadJSON(m.resultsPath(run.RunID), &rf); err != nil {
		return
	}
	run.ApplyResults(rf.Results)
}
