//go:build !windows

package procmgr

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// detach puts the child in its own session so it survives the hook's
// process group and terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// processAlive sends signal 0. EPERM means the process exists but belongs to
// someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// reap collects an exited child without blocking. gone is true when pid is
// not (or no longer) our child.
func reap(pid int) (reaped, gone bool) {
	var status unix.WaitStatus
	wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
	if err != nil {
		return false, errors.Is(err, unix.ECHILD)
	}
	return wpid == pid, false
}
