package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks every configuration failure.
	ErrConfig = errors.New("configuration error")
	// ErrNotFound indicates the configuration file does not exist.
	ErrNotFound = errors.New("configuration file not found")
)

// Error ties a configuration failure to the file it came from.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if errors.Is(e.Err, ErrNotFound) {
		return fmt.Sprintf("Configuration file not found: %s", e.Path)
	}
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

// Unwrap exposes both the ErrConfig marker and the underlying cause.
func (e *Error) Unwrap() []error {
	return []error{ErrConfig, e.Err}
}

func wrap(path string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Path: path, Err: err}
}
