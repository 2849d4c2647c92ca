package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCycle             = errors.New("dependency cycle")
)

// ConfigError reports a static defect in the tool dependency map
type ConfigError struct {
	Kind  error
	Msg   string
	Cycle []string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Kind }

func unknownDependency(tool, dep string) error {
	return &ConfigError{
		Kind: ErrUnknownDependency,
		Msg:  fmt.Sprintf("tool %q depends on undefined tool %q", tool, dep),
	}
}

func cycleError(path []string) error {
	return &ConfigError{
		Kind:  ErrCycle,
		Msg:   strings.Join(path, " -> "),
		Cycle: path,
	}
}
