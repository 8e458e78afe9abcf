package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"dirconfig/internal/backup"
	"dirconfig/internal/config"
	"dirconfig/internal/journal"
	"dirconfig/internal/logging"
	"dirconfig/internal/organizer"
	"dirconfig/internal/preflight"
	"dirconfig/internal/watcher"
)

const defaultPollInterval = time.Second

var (
	// ErrAlreadyRunning indicates another daemon holds the instance lock.
	ErrAlreadyRunning = errors.New("another dirconfig daemon is already running")
	// ErrWatcherStopped indicates the watcher goroutine exited on its own.
	ErrWatcherStopped = errors.New("watcher stopped unexpectedly")
)

// Options configures a Daemon.
type Options struct {
	Config     *config.Config
	ConfigPath string
	PIDPath    string
	Logger     *slog.Logger
	// Journal, when set, receives run and move records. The caller owns it.
	Journal *journal.Store
	// Cwd anchors dot-prefixed task sources. Empty means the working directory.
	Cwd           string
	PollInterval  time.Duration
	Signals       []os.Signal
	BackupOptions []backup.Option
}

// Daemon coordinates the watcher and process-level state, and enforces
// single-instance execution per PID file.
type Daemon struct {
	cfg        *config.Config
	configPath string
	pidPath    string
	lockPath   string
	lock       *flock.Flock
	base       *slog.Logger
	logger     *slog.Logger
	journal    *journal.Store
	cwd        string
	poll       time.Duration
	signals    []os.Signal
	backupOpts []backup.Option
	runID      string

	state atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	watcher *watcher.Watcher
}

// New constructs a daemon. Nothing is touched on disk until Run.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, errors.New("daemon requires a configuration")
	}
	pidPath := strings.TrimSpace(opts.PIDPath)
	if pidPath == "" {
		return nil, errors.New("daemon requires a PID file path")
	}
	absPID, err := filepath.Abs(pidPath)
	if err != nil {
		return nil, fmt.Errorf("resolve pid path: %w", err)
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	runID := journal.NewRunID()
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := LockPath(absPID)
	base := logger.With(logging.String(logging.FieldRunID, runID))
	return &Daemon{
		cfg:        opts.Config,
		configPath: opts.ConfigPath,
		pidPath:    absPID,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		base:       base,
		logger:     logging.NewComponentLogger(base, "daemon"),
		journal:    opts.Journal,
		cwd:        opts.Cwd,
		poll:       poll,
		signals:    signals,
		backupOpts: opts.BackupOptions,
		runID:      runID,
	}, nil
}

// State returns the current lifecycle phase.
func (d *Daemon) State() State { return State(d.state.Load()) }

// RunID identifies this daemon run in logs and the journal.
func (d *Daemon) RunID() string { return d.runID }

// PIDPath returns the absolute PID file location.
func (d *Daemon) PIDPath() string { return d.pidPath }

// Shutdown asks a running daemon to stop, exactly as a signal would. It does
// not wait; Run returns once shutdown completes.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run starts the daemon and blocks until a signal, Shutdown, cancellation of
// ctx, or the death of the watcher. Signal-driven exits return nil.
func (d *Daemon) Run(ctx context.Context) (err error) {
	if !d.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("daemon is %s", d.State())
	}
	d.logger.Info("daemon starting",
		logging.String("config", d.configPath),
		logging.String("pid_file", d.pidPath),
		logging.String("match_policy", string(d.cfg.Settings.MatchPolicy)),
	)

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		d.state.Store(int32(StateStopped))
		return fmt.Errorf("ensure pid directory: %w", err)
	}
	locked, err := d.lock.TryLock()
	if err != nil {
		d.state.Store(int32(StateStopped))
		return fmt.Errorf("acquire lock %s: %w", d.lockPath, err)
	}
	if !locked {
		d.state.Store(int32(StateStopped))
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}

	signalCtx, stopSignals := signal.NotifyContext(ctx, d.signals...)
	runCtx, cancel := context.WithCancel(signalCtx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	pidWritten := false
	var background sync.WaitGroup
	defer func() {
		d.state.Store(int32(StateStopping))
		d.logger.Info("daemon stopping")
		d.stopWatcher()
		if pidWritten {
			if rmErr := removePIDFile(d.pidPath); rmErr != nil {
				d.logger.Warn("failed to remove pid file", logging.String(logging.FieldPath, d.pidPath), logging.Error(rmErr))
			}
		}
		d.endRun()
		cancel()
		background.Wait()
		stopSignals()
		// Removed while still held so a waiting instance never locks a stale inode.
		if rmErr := os.Remove(d.lockPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			d.logger.Warn("failed to remove lock file", logging.String(logging.FieldPath, d.lockPath), logging.Error(rmErr))
		}
		if unlockErr := d.lock.Unlock(); unlockErr != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
		}
		d.mu.Lock()
		d.cancel = nil
		d.mu.Unlock()
		d.state.Store(int32(StateStopped))
		d.logger.Info("daemon stopped")
	}()

	org, err := organizer.New(organizer.Options{
		Policy:   d.cfg.Settings.MatchPolicy,
		Cwd:      d.cwd,
		Logger:   d.base,
		Recorder: d.recorder(),
	})
	if err != nil {
		return err
	}
	dispatcher := watcher.NewDispatcher(d.cfg.Tasks, org, d.base)
	w, err := watcher.New(watcher.Options{
		Logger:   d.base,
		Handler:  dispatcher,
		Debounce: d.cfg.Settings.Debounce,
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()

	d.beginRun(runCtx)
	if err := w.Start(runCtx, d.sourceDirs(org, dispatcher.Tasks())); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	// Preflight may wait on the network; the watcher is already live.
	background.Add(1)
	go func() {
		defer background.Done()
		d.runPreflight(runCtx)
	}()
	if d.cfg.Backup != nil {
		backup.Start(runCtx, d.cfg.Backup, d.base, d.backupOpts...)
	}
	d.state.Store(int32(StateRunning))

	if err := writePIDFile(d.pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	pidWritten = true
	d.logger.Info("daemon running",
		logging.Int("pid", os.Getpid()),
		logging.Int("tasks", len(dispatcher.Tasks())),
	)

	if d.cfg.Settings.ScanOnStart {
		w.Trigger()
	}

	return d.supervise(runCtx, signalCtx, w)
}

func (d *Daemon) supervise(runCtx, signalCtx context.Context, w *watcher.Watcher) error {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			if signalCtx.Err() != nil {
				d.logger.Info("shutdown signal received")
			} else {
				d.logger.Info("shutdown requested")
			}
			return nil
		case <-ticker.C:
			if !w.Alive() {
				logging.ErrorWithContext(d.logger, "watcher is no longer alive", "watcher_dead",
					logging.String(logging.FieldErrorHint, "check the log for watch errors, then restart the daemon"),
				)
				return ErrWatcherStopped
			}
		}
	}
}

func (d *Daemon) sourceDirs(org *organizer.Organizer, tasks []config.FileOrganizationTask) []string {
	dirs := make([]string, 0, len(tasks))
	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		dir, err := org.SourceDir(task)
		if err != nil {
			logging.ErrorWithContext(d.logger, "source directory unresolved", "source_unresolved",
				logging.String(logging.FieldSource, task.Source),
				logging.Error(&organizer.PathError{Path: task.Source, Err: err}),
			)
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

func (d *Daemon) runPreflight(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg, d.cwd)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String(logging.FieldErrorHint, result.Detail),
		)
	}
}

func (d *Daemon) stopWatcher() {
	d.mu.Lock()
	w := d.watcher
	d.watcher = nil
	d.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Stop(); err != nil {
		d.logger.Warn("watcher stop failed", logging.Error(err))
	}
}

func (d *Daemon) recorder() organizer.Recorder {
	if d.journal == nil {
		return nil
	}
	return d.journal.Recorder(d.runID)
}

func (d *Daemon) beginRun(ctx context.Context) {
	if d.journal == nil {
		return
	}
	err := d.journal.BeginRun(ctx, journal.Run{
		ID:         d.runID,
		PID:        os.Getpid(),
		ConfigPath: d.configPath,
		StartedAt:  time.Now(),
	})
	if err != nil {
		logging.WarnWithContext(d.logger, "journal run not recorded", "journal_write_failed",
			logging.String(logging.FieldImpact, "history will not list this run"),
			logging.Error(err),
		)
	}
}

func (d *Daemon) endRun() {
	if d.journal == nil {
		return
	}
	if err := d.journal.EndRun(context.Background(), d.runID, time.Now()); err != nil {
		d.logger.Debug("journal run not closed", logging.Error(err))
	}
}
