package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dirconfig/internal/backup"
	"dirconfig/internal/config"
	"dirconfig/internal/daemon"
	"dirconfig/internal/daemonctl"
	"dirconfig/internal/deps"
	"dirconfig/internal/journal"
	"dirconfig/internal/logging"
)

const detachedStartTimeout = 10 * time.Second

type startOptions struct {
	configPath  string
	logPath     string
	pidPath     string
	journalPath string
	logLevel    string
	logFormat   string
	detach      bool
}

func newStartCommand() *cobra.Command {
	opts := startOptions{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the dirconfig daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.detach {
				return startDetached(cmd.OutOrStdout(), opts)
			}
			return runForeground(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", defaultConfigPath, "Configuration file path")
	flags.StringVar(&opts.logPath, "log", defaultLogPath, "Log file path")
	flags.StringVar(&opts.pidPath, "pid", defaultPIDPath, "PID file path")
	flags.StringVar(&opts.journalPath, "journal", defaultJournalPath, "Move journal database path (empty disables)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format (console, json); defaults to console on a terminal, json otherwise")
	flags.BoolVar(&opts.detach, "detach", false, "Run the daemon in the background")
	return cmd
}

func runForeground(cmd *cobra.Command, opts startOptions) error {
	stdout := cmd.OutOrStdout()

	// Only the log file is touched until the configuration loads.
	cfg, cfgPath, err := config.Load(opts.configPath)
	if err != nil {
		logFailure(opts.logPath, "configuration not loaded", "config_invalid", err,
			logging.String(logging.FieldErrorHint, "run `dirconfig generate` or pass --config"),
		)
		return err
	}

	format := strings.TrimSpace(opts.logFormat)
	if format == "" {
		format = "json"
		if isTerminal(stdout) {
			format = "console"
		}
	}
	logger, err := logging.New(logging.Options{
		Level:    opts.logLevel,
		Format:   format,
		FilePath: opts.logPath,
		Console:  stdout,
		Color:    isTerminal(stdout),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	store := openJournal(logger, opts.journalPath)
	if store != nil {
		defer store.Close()
	}

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: cfgPath,
		PIDPath:    opts.pidPath,
		Logger:     logger.Logger,
		Journal:    store,
	})
	if err != nil {
		return err
	}
	if err := d.Run(cmd.Context()); err != nil {
		logging.ErrorWithContext(logger.Logger, "daemon exited with error", "daemon_failed", logging.Error(err))
		return err
	}
	return nil
}

// logFailure appends a single error record to the log file. The caller still
// prints err; a log file that cannot be opened is ignored.
func logFailure(path, msg, eventType string, err error, attrs ...logging.Attr) {
	if strings.TrimSpace(path) == "" {
		return
	}
	logger, openErr := logging.New(logging.Options{Format: "json", FilePath: path, Console: io.Discard})
	if openErr != nil {
		return
	}
	defer logger.Close()
	logging.ErrorWithContext(logger.Logger, msg, eventType, append(attrs, logging.Error(err))...)
}

func openJournal(logger *logging.Logger, path string) *journal.Store {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	store, err := journal.Open(path)
	if err != nil {
		logging.WarnWithContext(logger.Logger, "move journal unavailable", "journal_open_failed",
			logging.String(logging.FieldPath, path),
			logging.String(logging.FieldImpact, "moves will not be recorded for history"),
			logging.Error(err),
		)
		return nil
	}
	return store
}

func startDetached(stdout io.Writer, opts startOptions) error {
	if _, _, err := config.Load(opts.configPath); err != nil {
		logFailure(opts.logPath, "configuration not loaded", "config_invalid", err)
		return err
	}
	if info, err := daemonctl.Status(opts.pidPath); err == nil && info.Running {
		return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, info.PID)
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	pid, err := daemonctl.Launch(exe, daemonctl.LaunchOptions{
		ConfigPath:  opts.configPath,
		LogPath:     opts.logPath,
		PIDPath:     opts.pidPath,
		JournalPath: opts.journalPath,
		LogLevel:    opts.logLevel,
		LogFormat:   opts.logFormat,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Launching daemon (pid %d)...\n", pid)
	info, err := daemonctl.WaitForStart(opts.pidPath, detachedStartTimeout)
	if err != nil {
		return fmt.Errorf("%w; see %s", err, opts.logPath)
	}
	fmt.Fprintf(stdout, "Daemon started (pid %d)\n", info.PID)
	return nil
}

func newStopCommand() *cobra.Command {
	var pidPath, logPath string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the dirconfig daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			pid, err := daemonctl.Stop(pidPath)
			if err != nil {
				logFailure(logPath, "stop failed", "stop_failed", err, logging.String("pid_file", pidPath))
				return err
			}
			fmt.Fprintf(stdout, "Sent SIGTERM to daemon (pid %d)\n", pid)
			if wait <= 0 {
				return nil
			}
			if err := daemonctl.WaitForExit(pidPath, wait); err != nil {
				logFailure(logPath, "daemon did not exit", "stop_timeout", err, logging.Int("pid", pid))
				return err
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&pidPath, "pid", defaultPIDPath, "PID file path")
	cmd.Flags().StringVar(&logPath, "log", defaultLogPath, "Log file path")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the daemon to exit")
	return cmd
}

func newStatusCommand() *cobra.Command {
	var pidPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and backup client status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := isTerminal(stdout)

			info, err := daemonctl.Status(pidPath)
			if err != nil && !errors.Is(err, daemonctl.ErrProcess) {
				return err
			}
			writeSection(stdout, "Daemon", colorize,
				daemonLine(info, err),
				statusLine{"PID file", statusInfo, info.PIDPath},
			)
			fmt.Fprintln(stdout)

			var lines []statusLine
			for _, status := range deps.CheckBinaries([]deps.Requirement{backup.Requirement(runtime.GOOS)}) {
				lines = append(lines, dependencyLine(status))
			}
			writeSection(stdout, "Dependencies", colorize, lines...)
			return nil
		},
	}
	cmd.Flags().StringVar(&pidPath, "pid", defaultPIDPath, "PID file path")
	return cmd
}
