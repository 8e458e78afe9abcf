package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
)

// LockPath returns the instance lock that guards pidPath.
func LockPath(pidPath string) string {
	return pidPath + ".lock"
}

func writePIDFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
