//go:build windows

package process

import (
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

// killPID terminates a process by PID. A process that cannot be opened is
// treated as already gone.
func killPID(pid int) error {
	if pid <= 0 {
		return nil
	}
	h, err := openProcess(processTerminate, uint32(pid))
	if err != nil {
		return nil
	}
	defer closeHandle(h)
	if ret, _, err := procTerminateProcess.Call(uintptr(h), uintptr(1)); ret == 0 {
		return err
	}
	return nil
}

// killGroup has no group semantics on Windows; the tree walk covers children.
func killGroup(pgid int) error {
	return killPID(pgid)
}

// reapGroup does nothing: there is no group to signal, and the PID of a
// reaped process may already have been handed out again.
func reapGroup(int) error {
	return nil
}

// Alive reports whether pid still exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := openProcess(processQueryInformation, uint32(pid))
	if err != nil {
		return false
	}
	closeHandle(h)
	return true
}

func openProcess(access uint32, pid uint32) (syscall.Handle, error) {
	ret, _, err := procOpenProcess.Call(uintptr(access), 0, uintptr(pid))
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(h syscall.Handle) {
	_, _, _ = procCloseHandle.Call(uintptr(h))
}
