// Package notify reports finished background validations to the developer.
package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hochfrequenz/lintgate/internal/config"
	"github.com/hochfrequenz/lintgate/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	LogPath string // Optional path to the run's log
}

// FromRun summarises a completed validation run.
func FromRun(run *domain.ValidationRun, logPath string) Notification {
	n := Notification{RunID: run.RunID, LogPath: logPath}
	switch {
	case !run.Success:
		n.Type = NotifyError
		n.Title = "Validation failed"
		n.Message = fmt.Sprintf("%d errors, %d warnings in %d files", run.Errors, run.Warnings, len(run.Files))
		if len(run.ErrorDetails) > 0 {
			n.Message += ": " + strings.Join(run.ErrorDetails, "; ")
		}
	case run.Warnings > 0:
		n.Type = NotifyWarning
		n.Title = "Validation passed with warnings"
		n.Message = fmt.Sprintf("%d warnings in %d files", run.Warnings, len(run.Files))
	default:
		n.Type = NotifySuccess
		n.Title = "Validation passed"
		n.Message = fmt.Sprintf("%d files checked by %d tools", len(run.Files), len(run.ToolsRun))
	}
	return n
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send delivers to every notifier and joins their errors.
func (m *MultiNotifier) Send(n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// FromConfig builds the notifiers enabled in cfg. Successful runs are
// filtered out unless cfg.OnSuccess is set.
func FromConfig(cfg config.NotifyConfig) Notifier {
	var notifiers []Notifier
	if cfg.Desktop {
		notifiers = append(notifiers, NewDesktopNotifier(true))
	}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return NoopNotifier{}
	}
	var n Notifier = NewMultiNotifier(notifiers...)
	if !cfg.OnSuccess {
		n = failuresOnly{n}
	}
	return n
}

type failuresOnly struct{ next Notifier }

func (f failuresOnly) Send(n Notification) error {
	if n.Type == NotifySuccess {
		return nil
	}
	return f.next.Send(n)
}
