package config

import (
	"fmt"
	"strconv"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zenv"
)

type envOverrides struct {
	CacheDir   string `zog:"LINTGATE_CACHE_DIR"`
	MaxWorkers int    `zog:"LINTGATE_MAX_WORKERS"`
	LogLevel   string `zog:"LINTGATE_LOG_LEVEL"`
	FailFast   string `zog:"LINTGATE_FAIL_FAST"`
}

var envSchema = z.Struct(z.Shape{
	"CacheDir":   z.String().Optional().Trim(),
	"MaxWorkers": z.Int().Optional().GTE(0),
	"LogLevel":   z.String().Optional().Trim(),
	"FailFast":   z.String().Optional().Trim(),
})

// ApplyEnv overlays LINTGATE_* environment variables onto cfg
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if errs := envSchema.Parse(zenv.NewDataProvider(), &env); errs != nil {
		return fmt.Errorf("invalid LINTGATE_* environment: %v", z.Issues.FlattenAndCollect(errs))
	}

	if env.CacheDir != "" {
		cfg.General.CacheDir = env.CacheDir
	}
	if env.MaxWorkers > 0 {
		cfg.General.MaxWorkers = env.MaxWorkers
	}
	if env.LogLevel != "" {
		cfg.General.LogLevel = env.LogLevel
	}
	if env.FailFast != "" {
		v, err := strconv.ParseBool(env.FailFast)
		if err != nil {
			return fmt.Errorf("LINTGATE_FAIL_FAST: %w", err)
		}
		cfg.General.FailFast = v
	}
	return nil
}
