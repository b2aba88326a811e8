package model

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyExists      = errors.New("forge server already exists")
	ErrNotFound           = errors.New("file not found")
	ErrDownloadFailed     = errors.New("error downloading file")
	ErrNotInstalled       = errors.New("forge server not found")
	ErrAlreadyRunning     = errors.New("server is already running")
	ErrServerRunning      = errors.New("stop server before installing mods")
	ErrInstallerFailed    = errors.New("forge installer failed")
	ErrProcessSpawn       = errors.New("failed to spawn process")
	ErrNotificationFailed = errors.New("task status notification failed")
	ErrNotRunning         = errors.New("server is not running")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrBusy               = errors.New("server is busy with another operation")
)

// InstallerError carries the exit code of a failed installer run.
type InstallerError struct {
	Code int
}

func (e *InstallerError) Error() string {
	return fmt.Sprintf("Forge installer exited with code %d", e.Code)
}

func (e *InstallerError) Is(target error) bool { return target == ErrInstallerFailed }
