//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// killPID forcibly terminates a single process.
func killPID(pid int) error {
	return ignoreGone(syscall.Kill(pid, syscall.SIGKILL))
}

// killGroup forcibly terminates every member of the process group led by pgid.
func killGroup(pgid int) error {
	if pgid <= 0 {
		return nil
	}
	return ignoreGone(syscall.Kill(-pgid, syscall.SIGKILL))
}

// reapGroup kills what is left of the group of a reaped leader. The group
// id stays reserved while any member lives, so it cannot hit a stranger.
func reapGroup(pgid int) error {
	return killGroup(pgid)
}

// Alive reports whether pid still exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func ignoreGone(err error) error {
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
