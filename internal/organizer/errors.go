package organizer

import (
	"errors"
	"fmt"
)

var (
	// ErrPath marks failures to resolve or read a task's source directory.
	ErrPath = errors.New("path error")
	// ErrMove marks failures to create a destination or move an entry.
	ErrMove = errors.New("move error")
)

// PathError reports a source directory that could not be resolved or listed.
// It aborts the organize call for that task only.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("source directory %s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() []error {
	return []error{ErrPath, e.Err}
}

// MoveError reports a single entry that could not be moved.
type MoveError struct {
	Entry string
	From  string
	To    string
	Err   error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *MoveError) Unwrap() []error {
	return []error{ErrMove, e.Err}
}
