package notify

import (
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier pops up a local notification through the platform's
// notification command. Platforms without one are silently skipped.
type DesktopNotifier struct {
	enabled bool
	goos    string
	run     func(name string, args ...string) error
}

// NewDesktopNotifier returns a notifier for the current platform
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{
		enabled: enabled,
		goos:    runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}
	name, args, ok := desktopCommand(d.goos, n)
	if !ok {
		return nil
	}
	return d.run(name, args...)
}

// desktopCommand returns the argv that shows n on goos
func desktopCommand(goos string, n Notification) (string, []string, bool) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", AppleScript(n)}, true
	case "linux", "freebsd", "openbsd":
		urgency := "normal"
		if n.Type == NotifyError {
			urgency = "critical"
		}
		return "notify-send", []string{"-a", "lintgate", "-u", urgency, "-i", IconForType(n.Type), n.Title, body(n)}, true
	}
	return "", nil, false
}

// AppleScript renders n as an osascript display command
func AppleScript(n Notification) string {
	quote := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `display notification "` + quote.Replace(body(n)) +
		`" with title "lintgate" subtitle "` + quote.Replace(n.Title) + `"`
}

func body(n Notification) string {
	if n.LogPath == "" {
		return n.Message
	}
	return n.Message + "\nLog: " + n.LogPath
}

// IconForType names a freedesktop icon for t
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	}
	return "dialog-information"
}
