package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"dirconfig/internal/config"
	"dirconfig/internal/deps"
	"dirconfig/internal/logging"
)

const (
	posixClientCommand   = "urbackupclientctl"
	windowsClientCommand = "urbackupclient_cmd"
	windowsInstallDir    = `C:\Program Files\UrBackup\`
)

// ErrClientUnavailable is returned when the client does not answer and cannot
// be installed.
var ErrClientUnavailable = errors.New("urbackup client unavailable")

// ClientCommand returns the client binary name for goos.
func ClientCommand(goos string) string {
	if goos == "windows" {
		return windowsClientCommand
	}
	return posixClientCommand
}

// Requirement describes the client binary for dependency checks.
func Requirement(goos string) deps.Requirement {
	return deps.Requirement{
		Name:        "UrBackup client",
		Command:     ClientCommand(goos),
		Description: "Runs the backups configured in the backup section",
		Optional:    true,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithRunner replaces the command runner.
func WithRunner(runner Runner) Option {
	return func(c *Client) { c.runner = runner }
}

// WithGOOS overrides the target operating system.
func WithGOOS(goos string) Option {
	return func(c *Client) { c.goos = goos }
}

// WithBinaryCheck replaces the PATH lookup used before the first status call.
func WithBinaryCheck(check func(deps.Requirement) deps.Status) Option {
	return func(c *Client) { c.check = check }
}

// Client runs the backup sequence for one configuration.
type Client struct {
	cfg     config.Backup
	runner  Runner
	logger  *slog.Logger
	goos    string
	check   func(deps.Requirement) deps.Status
	command string
}

// NewClient builds a Client for cfg.
func NewClient(cfg config.Backup, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		runner: ExecRunner{},
		logger: logging.NewComponentLogger(logger, "backup"),
		goos:   runtime.GOOS,
		check:  deps.CheckBinary,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.command = ClientCommand(c.goos)
	return c
}

// Start runs the backup sequence in the background. It never blocks and never
// reports failure to the caller.
func Start(ctx context.Context, cfg *config.Backup, logger *slog.Logger, opts ...Option) {
	if cfg == nil {
		return
	}
	client := NewClient(*cfg, logger, opts...)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				client.logger.Error("backup sequence panicked", logging.Any("panic", r))
			}
		}()
		if err := client.Run(ctx); err != nil {
			logging.WarnWithContext(client.logger, "backup sequence finished with errors", "backup_failed",
				logging.String(logging.FieldImpact, "files are organized but not backed up"),
				logging.String(logging.FieldErrorHint, "run the urbackup client manually to inspect its state"),
				logging.Error(err),
			)
		}
	}()
}

// Run executes the full sequence. A client that cannot be made available
// stops the sequence; directory registration failures do not.
func (c *Client) Run(ctx context.Context) error {
	if err := c.EnsureInstalled(ctx); err != nil {
		return err
	}
	dirErr := c.AddDirectories(ctx)
	startErr := c.StartBackup(ctx)
	return errors.Join(dirErr, startErr)
}

// EnsureInstalled checks the client status and runs the configured installer
// when the check fails.
func (c *Client) EnsureInstalled(ctx context.Context) error {
	statusErr := c.status(ctx)
	if statusErr == nil {
		c.logger.Info("UrBackup client is running.")
		return nil
	}
	c.logger.Info("UrBackup client not running. Attempting installation...", logging.Error(statusErr))

	installer := strings.TrimSpace(c.cfg.Installer)
	if installer == "" {
		return fmt.Errorf("%w: %v and no installer configured", ErrClientUnavailable, statusErr)
	}
	if err := c.install(ctx, installer); err != nil {
		return fmt.Errorf("%w: install: %w", ErrClientUnavailable, err)
	}
	if err := c.status(ctx); err != nil {
		return fmt.Errorf("%w: still not answering after install: %w", ErrClientUnavailable, err)
	}
	c.logger.Info("UrBackup client installed",
		logging.String("installer", installer),
		logging.String("server", c.cfg.Connection.Server),
	)
	return nil
}

func (c *Client) status(ctx context.Context) error {
	req := Requirement(c.goos)
	req.Command = c.command
	if status := c.check(req); !status.Available {
		return errors.New(status.Detail)
	}
	_, err := c.run(ctx, c.command, "status")
	return err
}

func (c *Client) install(ctx context.Context, installer string) error {
	if c.goos != "windows" {
		info, err := os.Stat(installer)
		if err != nil {
			return err
		}
		if err := os.Chmod(installer, info.Mode().Perm()|0o111); err != nil {
			return fmt.Errorf("make installer executable: %w", err)
		}
	}
	if _, err := c.run(ctx, installer); err != nil {
		return err
	}
	if c.goos == "windows" {
		// The PATH change only reaches new processes; address the client
		// directly for the rest of this run.
		c.command = windowsInstallDir + windowsClientCommand + ".exe"
		return c.addToPath(ctx, windowsInstallDir)
	}
	return nil
}

// addToPath appends entry to the user PATH unless it is already present.
func (c *Client) addToPath(ctx context.Context, entry string) error {
	out, err := c.run(ctx, "powershell", "-Command", pathScript(entry))
	if err != nil {
		c.logger.Error("Failed to modify the system PATH", logging.String("stderr", out.Stderr))
		return fmt.Errorf("add %s to PATH: %w", entry, err)
	}
	c.logger.Info(out.Stdout, logging.String(logging.FieldPath, entry))
	return nil
}

func pathScript(entry string) string {
	quoted := strings.ReplaceAll(entry, "'", "''")
	return `$newPathEntry = '` + quoted + `';
$envPath = [Environment]::GetEnvironmentVariable("PATH", "User");
if ($envPath -split ';' -contains $newPathEntry) {
    Write-Output 'Already in PATH'
} else {
    $newPath = $envPath + ';' + $newPathEntry;
    [Environment]::SetEnvironmentVariable("PATH", $newPath, "User");
    Write-Output 'Added to PATH'
}`
}

// AddDirectories registers every configured directory with the client.
func (c *Client) AddDirectories(ctx context.Context) error {
	var failures []error
	for _, dir := range c.cfg.Directories {
		out, err := c.run(ctx, c.command, "add-backupdir", "--path", dir)
		if err != nil {
			c.logger.Error(fmt.Sprintf("Failed to add backup directory: %s", dir),
				logging.String("stderr", out.Stderr),
				logging.Error(err),
			)
			failures = append(failures, fmt.Errorf("add-backupdir %s: %w", dir, err))
			continue
		}
		c.logger.Info(fmt.Sprintf("Successfully added backup directory: %s", dir))
	}
	return errors.Join(failures...)
}

// StartBackup asks the client for a non-blocking backup of the configured type.
func (c *Client) StartBackup(ctx context.Context) error {
	option := "-f"
	if c.cfg.Incremental() {
		option = "-i"
	}
	out, err := c.run(ctx, c.command, "start", option, "--non-blocking", "--client", c.cfg.Name)
	if err != nil {
		c.logger.Error(fmt.Sprintf("Failed to start %s backup for %s.", c.cfg.Type, c.cfg.Name),
			logging.String("stderr", out.Stderr),
			logging.Error(err),
		)
		return fmt.Errorf("start %s backup: %w", c.cfg.Type, err)
	}
	c.logger.Info(fmt.Sprintf("Successfully started %s backup for %s.", c.cfg.Type, c.cfg.Name))
	return nil
}

func (c *Client) run(ctx context.Context, name string, args ...string) (Output, error) {
	c.logger.Debug("running command", logging.String("command", name), logging.Any("args", args))
	out, err := c.runner.Run(ctx, name, args...)
	if err != nil && out.Stderr != "" {
		err = fmt.Errorf("%w: %s", err, out.Stderr)
	}
	return out, err
}
