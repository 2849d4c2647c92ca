// Package tools adapts external linters and formatters to executor.Tool.
package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/executor"
)

const (
	// maxOutput caps the output kept on a ToolResult
	maxOutput = 64 * 1024
	// maxLine truncates single lines; the rest of the line is read and dropped
	maxLine = 1024 * 1024
)

var (
	errorLine   = regexp.MustCompile(`(?i)(\berror\b|:\d+:\d+: [EF]\d+|would reformat)`)
	warningLine = regexp.MustCompile(`(?i)(\bwarn(ing)?\b|:\d+:\d+: [WC]\d+)`)
)

// CommandTool runs one external program as a subprocess
type CommandTool struct {
	Name          string
	Command       string
	Args          []string
	Dir           string
	Env           []string
	Files         []string
	FilePatterns  []string
	PassFiles     bool
	Timeout       time.Duration
	KillOnTimeout bool
}

var (
	_ executor.Tool        = (*CommandTool)(nil)
	_ executor.TimeoutTool = (*CommandTool)(nil)
)

// ToolTimeout overrides the executor's soft deadline when set
func (t *CommandTool) ToolTimeout() time.Duration {
	return t.Timeout
}

// FromConfig builds a CommandTool for the given files
func FromConfig(name string, tc config.ToolConfig, dir string, files []string) *CommandTool {
	return &CommandTool{
		Name:          name,
		Command:       tc.Command,
		Args:          tc.Args,
		Dir:           dir,
		Files:         files,
		FilePatterns:  tc.FilePatterns,
		PassFiles:     tc.PassFiles,
		Timeout:       tc.Timeout(),
		KillOnTimeout: tc.KillOnTimeout,
	}
}

// Build returns one CommandTool per configured tool
func Build(project *config.Project, files []string) map[string]executor.Tool {
	tools := make(map[string]executor.Tool, len(project.Tools))
	for name, tc := range project.Tools {
		tools[name] = FromConfig(name, tc, project.Root, files)
	}
	return tools
}

// MatchingFiles filters Files by FilePatterns, matched against base names
func (t *CommandTool) MatchingFiles() []string {
	if len(t.FilePatterns) == 0 {
		return t.Files
	}
	var out []string
	for _, f := range t.Files {
		base := filepath.Base(f)
		for _, pattern := range t.FilePatterns {
			if ok, _ := filepath.Match(pattern, base); ok {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Run executes the command and classifies its output
func (t *CommandTool) Run(ctx context.Context) domain.ToolResult {
	start := time.Now()

	files := t.MatchingFiles()
	if t.PassFiles && len(files) == 0 && len(t.Files) > 0 {
		return domain.ToolResult{
			ToolName: t.Name,
			Success:  true,
			Status:   domain.ToolSuccess,
			Metadata: map[string]any{"skipped_reason": "no matching files"},
		}
	}

	if t.KillOnTimeout && t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	args := append([]string(nil), t.Args...)
	if t.PassFiles {
		args = append(args, files...)
	}

	cmd := exec.CommandContext(ctx, t.Command, args...)
	cmd.Dir = t.Dir
	cmd.Env = append(os.Environ(), t.Env...)

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		msg := fmt.Sprintf("starting %s: %v", t.Command, err)
		if errors.Is(err, exec.ErrNotFound) {
			msg = fmt.Sprintf("%s not found in PATH", t.Command)
		}
		return domain.ToolResult{
			ToolName:     t.Name,
			Status:       domain.ToolFailed,
			DurationSecs: time.Since(start).Seconds(),
			Errors:       1,
			ErrorMessage: msg,
		}
	}

	var (
		mu       sync.Mutex
		output   strings.Builder
		errCount int
		warnings int
		firstErr string
	)
	collect := func(r io.Reader) {
		readLines(r, func(line string) {
			mu.Lock()
			defer mu.Unlock()
			if output.Len() < maxOutput {
				output.WriteString(line)
				output.WriteByte('\n')
			}
			switch {
			case errorLine.MatchString(line):
				errCount++
				if firstErr == "" {
					firstErr = strings.TrimSpace(line)
				}
			case warningLine.MatchString(line):
				warnings++
			}
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); collect(stdout) }()
	go func() { defer wg.Done(); collect(stderr) }()
	wg.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return domain.ToolResult{
				ToolName:     t.Name,
				Status:       domain.ToolFailed,
				DurationSecs: time.Since(start).Seconds(),
				Output:       output.String(),
				Errors:       max(errCount, 1),
				ErrorMessage: err.Error(),
			}
		}
		exitCode = exitErr.ExitCode()
	}

	res := domain.ToolResult{
		ToolName:     t.Name,
		DurationSecs: time.Since(start).Seconds(),
		Output:       output.String(),
		Errors:       errCount,
		Warnings:     warnings,
		Metadata: map[string]any{
			"exit_code": exitCode,
			"command":   strings.Join(append([]string{t.Command}, t.Args...), " "),
			"files":     len(files),
		},
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.Status = domain.ToolTimeout
		res.ErrorMessage = fmt.Sprintf("killed after %s", t.Timeout)
	case exitCode != 0:
		res.Status = domain.ToolFailed
		res.Errors = max(res.Errors, 1)
		res.ErrorMessage = firstErr
		if res.ErrorMessage == "" {
			res.ErrorMessage = fmt.Sprintf("exited with code %d", exitCode)
		}
	default:
		res.Status = domain.ToolSuccess
		res.Success = true
	}
	return res
}

// readLines calls fn for every line of r until EOF. Lines longer than
// maxLine are truncated, and r is always drained so the writer never blocks.
func readLines(r io.Reader, fn func(line string)) {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if room := maxLine - len(line); room > 0 {
			line = append(line, chunk[:min(len(chunk), room)]...)
		}
		if err != nil {
			if len(line) > 0 {
				fn(string(line))
			}
			return
		}
		if !isPrefix {
			fn(string(line))
			line = line[:0]
		}
	}
}
