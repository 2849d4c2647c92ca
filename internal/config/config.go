package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General GeneralConfig `toml:"general"`
	Runs    RunsConfig    `toml:"runs"`
	Tasks   TasksConfig   `toml:"tasks"`
	Serve   ServeConfig   `toml:"serve"`
	Notify  NotifyConfig  `toml:"notify"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	CacheDir           string `toml:"cache_dir"`
	MaxWorkers         int    `toml:"max_workers"` // 0 means CPU count - 1
	ToolTimeoutSeconds int    `toml:"tool_timeout_seconds"`
	FailFast           bool   `toml:"fail_fast"`
	LogLevel           string `toml:"log_level"`
}

// RunsConfig holds settings for persisted validation runs
type RunsConfig struct {
	MaxAgeDays   int `toml:"max_age_days"`
	HistoryLimit int `toml:"history_limit"`
}

// TasksConfig holds settings for async task persistence
type TasksConfig struct {
	Backend      string `toml:"backend"` // "file" or "sqlite"
	DatabasePath string `toml:"database_path"`
	MaxAgeHours  int    `toml:"max_age_hours"`
}

// ServeConfig holds settings for the long-lived API server
type ServeConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	MaintenanceCron string `toml:"maintenance_cron"`
}

// NotifyConfig controls notifications about finished background validations
type NotifyConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
	OnSuccess    bool   `toml:"on_success"` // failures are always reported
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			CacheDir:           filepath.Join(home, ".cache", "lintgate"),
			ToolTimeoutSeconds: 30,
			LogLevel:           "info",
		},
		Runs: RunsConfig{
			MaxAgeDays:   7,
			HistoryLimit: 10,
		},
		Tasks: TasksConfig{
			Backend:     "file",
			MaxAgeHours: 24,
		},
		Serve: ServeConfig{
			Host:            "127.0.0.1",
			Port:            8765,
			MaintenanceCron: "*/15 * * * *",
		},
		Notify: NotifyConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults,
// then applies LINTGATE_* environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.CacheDir = ExpandPath(cfg.General.CacheDir)
	cfg.Tasks.DatabasePath = ExpandPath(cfg.Tasks.DatabasePath)

	return cfg, nil
}

// ToolTimeout returns the per-tool soft timeout
func (c *Config) ToolTimeout() time.Duration {
	if c.General.ToolTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.General.ToolTimeoutSeconds) * time.Second
}

// RunsDir is where ValidationRun records live
func (c *Config) RunsDir() string {
	return filepath.Join(c.General.CacheDir, "runs")
}

// ResultsDir is where detailed per-tool results live
func (c *Config) ResultsDir() string {
	return filepath.Join(c.General.CacheDir, "results")
}

// TasksDir is where terminal async tasks are persisted
func (c *Config) TasksDir() string {
	return filepath.Join(c.General.CacheDir, "tasks")
}

// TaskDatabasePath returns the sqlite path for the sqlite task backend
func (c *Config) TaskDatabasePath() string {
	if c.Tasks.DatabasePath != "" {
		return c.Tasks.DatabasePath
	}
	return filepath.Join(c.General.CacheDir, "tasks.db")
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lintgate", "config.toml")
}
