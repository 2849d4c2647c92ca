//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

var (
	buildOnce sync.Once
	binary    string
	buildErr  error
	buildOut  []byte
)

// binaryPath builds the lintgate CLI once per test binary
func binaryPath(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		root := filepath.Dir(filepath.Dir(filename))
		dir, err := os.MkdirTemp("", "lintgate-bin")
		if err != nil {
			buildErr = err
			return
		}
		binary = filepath.Join(dir, "lintgate")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/lintgate")
		cmd.Dir = root
		buildOut, buildErr = cmd.CombinedOutput()
	})
	if buildErr != nil {
		t.Fatalf("Failed to build binary: %v\n%s", buildErr, buildOut)
	}
	return binary
}

// testRepo is a throwaway repository with its own tool config and cache
type testRepo struct {
	Root   string
	Config string
	Cache  string
}

// newTestRepo writes .lintgate.yaml with the given tools section and a
// config file that keeps all state inside the test's temp dir
func newTestRepo(t *testing.T, tools string) *testRepo {
	t.Helper()
	base := t.TempDir()
	r := &testRepo{
		Root:   filepath.Join(base, "repo"),
		Config: filepath.Join(base, "config.toml"),
		Cache:  filepath.Join(base, "cache"),
	}
	if err := os.MkdirAll(r.Root, 0755); err != nil {
		t.Fatal(err)
	}

	project := "tools:\n" + tools
	if err := os.WriteFile(filepath.Join(r.Root, ".lintgate.yaml"), []byte(project), 0644); err != nil {
		t.Fatalf("Failed to write project config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(r.Root, "a.py"), []byte("x = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	config := `[general]
cache_dir = "` + r.Cache + `"
log_level = "warn"

[notify]
desktop = false
`
	if err := os.WriteFile(r.Config, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return r
}

// run executes the CLI against the repo and returns combined output and
// exit code
func (r *testRepo) run(t *testing.T, args ...string) (string, int) {
	t.Helper()
	full := append([]string{"--config", r.Config, "--repo", r.Root}, args...)
	cmd := exec.Command(binaryPath(t), full...)
	cmd.Dir = r.Root
	cmd.Env = append(os.Environ(), "LINTGATE_CACHE_DIR="+r.Cache)
	out, err := cmd.CombinedOutput()
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			t.Fatalf("running %s: %v", strings.Join(args, " "), err)
		}
		return string(out), exitErr.ExitCode()
	}
	return string(out), 0
}
