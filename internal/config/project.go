package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

// ProjectFileName is the per-repository tool configuration file
const ProjectFileName = ".lintgate.yaml"

// ToolConfig describes how to invoke one external linter or formatter
type ToolConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	DependsOn      []string `yaml:"depends_on"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	FilePatterns   []string `yaml:"file_patterns"`
	PassFiles      bool     `yaml:"pass_files"`
	KillOnTimeout  bool     `yaml:"kill_on_timeout"`
}

// Timeout returns the tool's own timeout, zero when it uses the executor default
func (t ToolConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Project is the repository-level tool configuration
type Project struct {
	Root  string                `yaml:"-"`
	Tools map[string]ToolConfig `yaml:"tools"`
}

// DefaultProject returns the built-in Python toolchain
func DefaultProject(root string) *Project {
	py := []string{"*.py", "*.pyi"}
	return &Project{
		Root: root,
		Tools: map[string]ToolConfig{
			"black": {Command: "black", Args: []string{"--check", "--quiet"}, FilePatterns: py, PassFiles: true},
			"isort": {Command: "isort", Args: []string{"--check-only", "--quiet"}, FilePatterns: py, PassFiles: true},
			"ruff":  {Command: "ruff", Args: []string{"check"}, FilePatterns: py, PassFiles: true},
			"mypy": {
				Command: "mypy", Args: []string{"--no-error-summary"},
				DependsOn: []string{"black", "isort"}, FilePatterns: py, PassFiles: true,
			},
			"flake8": {
				Command: "flake8", DependsOn: []string{"black", "isort"},
				FilePatterns: py, PassFiles: true,
			},
		},
	}
}

// LoadProject reads .lintgate.yaml from root, falling back to DefaultProject
func LoadProject(root string) (*Project, error) {
	path := filepath.Join(root, ProjectFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProject(root), nil
		}
		return nil, err
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	p.Root = root
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

// Validate checks every tool has a command. Dependency validity is checked
// by the scheduler.
func (p *Project) Validate() error {
	if len(p.Tools) == 0 {
		return fmt.Errorf("no tools configured")
	}
	for name, tool := range p.Tools {
		if tool.Command == "" {
			return fmt.Errorf("tool %q: command is required", name)
		}
		if tool.TimeoutSeconds < 0 {
			return fmt.Errorf("tool %q: timeout_seconds must not be negative", name)
		}
	}
	return nil
}

// Specs returns the dependency declarations sorted by tool name
func (p *Project) Specs() []domain.ToolSpec {
	specs := make([]domain.ToolSpec, 0, len(p.Tools))
	for name, tool := range p.Tools {
		specs = append(specs, domain.ToolSpec{Name: name, DependsOn: tool.DependsOn})
	}
	slices.SortFunc(specs, func(a, b domain.ToolSpec) int { return strings.Compare(a.Name, b.Name) })
	return specs
}

// Dependencies returns the static tool -> dependencies map
func (p *Project) Dependencies() map[string][]string {
	return domain.DependencyMap(p.Specs())
}
