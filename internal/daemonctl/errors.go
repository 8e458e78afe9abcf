package daemonctl

import (
	"errors"
	"fmt"
)

var (
	// ErrProcess marks every process-control failure.
	ErrProcess = errors.New("process control error")
	// ErrNotRunning indicates the PID file is absent.
	ErrNotRunning = errors.New("PID file not found. Is the daemon running?")
	// ErrProcessNotFound indicates the PID file names a process that no longer exists.
	ErrProcessNotFound = errors.New("Process not found. It may have been stopped already.")
)

// ProcessError describes a failed attempt to reach the daemon process. Kind is
// ErrNotRunning, ErrProcessNotFound, or nil for other failures.
type ProcessError struct {
	PIDPath string
	PID     int
	Kind    error
	Err     error
}

func (e *ProcessError) Error() string {
	if e.Kind != nil {
		return e.Kind.Error()
	}
	if e.PID > 0 {
		return fmt.Sprintf("process %d: %v", e.PID, e.Err)
	}
	return fmt.Sprintf("pid file %s: %v", e.PIDPath, e.Err)
}

// Unwrap exposes the ErrProcess marker, the kind, and the cause.
func (e *ProcessError) Unwrap() []error {
	errs := []error{ErrProcess}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
