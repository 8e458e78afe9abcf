package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"dirconfig/internal/daemon"
)

const pollInterval = 100 * time.Millisecond

// ReadPID parses the PID file at pidPath.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &ProcessError{PIDPath: pidPath, Kind: ErrNotRunning, Err: err}
		}
		return 0, &ProcessError{PIDPath: pidPath, Err: fmt.Errorf("read: %w", err)}
	}
	value := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, &ProcessError{PIDPath: pidPath, Err: fmt.Errorf("malformed pid %q", value)}
	}
	return pid, nil
}

// Stop sends SIGTERM to the process named by the PID file and returns its pid.
// It does not wait for the process to exit; see WaitForExit.
func Stop(pidPath string) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == os.Getpid() {
		return pid, &ProcessError{PIDPath: pidPath, PID: pid, Err: errors.New("refusing to signal the current process")}
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return pid, &ProcessError{PIDPath: pidPath, PID: pid, Kind: ErrProcessNotFound, Err: err}
		}
		return pid, &ProcessError{PIDPath: pidPath, PID: pid, Err: fmt.Errorf("send SIGTERM: %w", err)}
	}
	return pid, nil
}

// WaitForExit polls until the PID file disappears or timeout elapses.
func WaitForExit(pidPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(pidPath); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("daemon did not stop within %s (pid file %s still present)", timeout, pidPath)
		}
		time.Sleep(pollInterval)
	}
}

// StatusInfo summarizes what the PID file and instance lock say about the
// daemon.
type StatusInfo struct {
	PIDPath string
	PID     int
	// Running is true when the process exists and holds the instance lock.
	Running bool
	// Stale is true when a PID file exists but no daemon owns it.
	Stale bool
}

// Status inspects pidPath without modifying it. A missing PID file is not an
// error.
func Status(pidPath string) (StatusInfo, error) {
	info := StatusInfo{PIDPath: pidPath}
	pid, err := ReadPID(pidPath)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			return info, nil
		}
		return info, err
	}
	info.PID = pid
	held, err := lockHeld(daemon.LockPath(pidPath))
	if err != nil {
		return info, err
	}
	info.Running = held && processAlive(pid)
	info.Stale = !info.Running
	return info, nil
}

func lockHeld(lockPath string) (bool, error) {
	if _, err := os.Stat(lockPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat lock %s: %w", lockPath, err)
	}
	lock := flock.New(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("test lock %s: %w", lockPath, err)
	}
	if acquired {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// LaunchOptions carries the flags forwarded to a detached `start`.
type LaunchOptions struct {
	ConfigPath  string
	LogPath     string
	PIDPath     string
	JournalPath string
	LogLevel    string
	LogFormat   string
}

// Args renders the start command line for the detached child.
func (o LaunchOptions) Args() []string {
	args := []string{"start"}
	add := func(flag, value string) {
		if value = strings.TrimSpace(value); value != "" {
			args = append(args, "--"+flag, value)
		}
	}
	add("config", o.ConfigPath)
	add("log", o.LogPath)
	add("pid", o.PIDPath)
	args = append(args, "--journal", strings.TrimSpace(o.JournalPath))
	add("log-level", o.LogLevel)
	add("log-format", o.LogFormat)
	return args
}

// Launch starts a detached daemon process in its own session and returns its
// pid.
func Launch(executablePath string, opts LaunchOptions) (int, error) {
	if strings.TrimSpace(executablePath) == "" {
		return 0, errors.New("resolve executable: executable path is empty")
	}
	proc := exec.Command(executablePath, opts.Args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	pid := proc.Process.Pid
	return pid, proc.Process.Release()
}

// WaitForStart polls Status until the daemon reports running or timeout
// elapses.
func WaitForStart(pidPath string, timeout time.Duration) (StatusInfo, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		info, err := Status(pidPath)
		if err == nil && info.Running {
			return info, nil
		}
		if err != nil {
			lastErr = err
		}
		if !time.Now().Before(deadline) {
			if lastErr == nil {
				lastErr = errors.New("timeout waiting for daemon")
			}
			return info, fmt.Errorf("daemon failed to start: %w", lastErr)
		}
		time.Sleep(pollInterval)
	}
}
