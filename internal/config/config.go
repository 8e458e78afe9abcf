package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.yaml
var sampleConfig string

// TaskKind names a task variant as written in the `type` field of a task.
type TaskKind string

const (
	// KindFileOrganization moves files out of a source directory by extension.
	KindFileOrganization TaskKind = "file-organization"
)

// Task is a configured job. The set of implementations is closed; consumers
// switch over the concrete types.
type Task interface {
	Kind() TaskKind
	isTask()
}

// Rule maps a set of file-extension suffixes to a destination directory.
type Rule struct {
	// Extensions holds suffixes including the leading dot, e.g. ".pdf".
	Extensions []string
	// Destination is root-relative when it starts with "/", otherwise
	// relative to the task's resolved source directory.
	Destination string
}

// Matches reports whether ext is one of the rule's extensions.
func (r Rule) Matches(ext string) bool {
	if ext == "" {
		return false
	}
	for _, candidate := range r.Extensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

// ResolveDestination returns the absolute destination directory for a task
// whose source resolved to sourcePath.
func (r Rule) ResolveDestination(sourcePath string) string {
	if strings.HasPrefix(r.Destination, "/") {
		return filepath.Join(string(filepath.Separator), strings.TrimLeft(r.Destination, "/"))
	}
	return filepath.Clean(filepath.Join(sourcePath, r.Destination))
}

// FileOrganizationTask watches one source directory and applies its rules in order.
type FileOrganizationTask struct {
	Source string
	Rules  []Rule
}

// Kind implements Task.
func (FileOrganizationTask) Kind() TaskKind { return KindFileOrganization }

func (FileOrganizationTask) isTask() {}

// ResolveSource resolves the task source against cwd. Dot-prefixed sources are
// joined to cwd; anything else is treated as an absolute (or tilde) path.
func (t FileOrganizationTask) ResolveSource(cwd string) (string, error) {
	source := strings.TrimSpace(t.Source)
	if source == "" {
		return "", errors.New("task source is empty")
	}
	if strings.HasPrefix(source, ".") {
		return filepath.Clean(filepath.Join(cwd, source)), nil
	}
	return expandPath(source)
}

// FileOrganizationTasks filters tasks down to the file-organization variant,
// preserving configuration order.
func FileOrganizationTasks(tasks []Task) []FileOrganizationTask {
	out := make([]FileOrganizationTask, 0, len(tasks))
	for _, task := range tasks {
		switch t := task.(type) {
		case FileOrganizationTask:
			out = append(out, t)
		case *FileOrganizationTask:
			if t != nil {
				out = append(out, *t)
			}
		}
	}
	return out
}

// MatchPolicy controls how many rules may claim a single directory entry.
type MatchPolicy string

const (
	// MatchFirst stops at the first rule whose extension set contains the entry.
	MatchFirst MatchPolicy = "first-match"
	// MatchAll evaluates every rule; later matches find the entry already moved.
	MatchAll MatchPolicy = "all-matches"
)

// Settings contains daemon runtime knobs.
type Settings struct {
	MatchPolicy MatchPolicy
	Debounce    time.Duration
	ScanOnStart bool
}

// Connection holds backup server credentials.
type Connection struct {
	Server   string `yaml:"server" toml:"server"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// Backup is the optional section consumed by the backup collaborator.
type Backup struct {
	Name        string     `yaml:"name" toml:"name"`
	Type        string     `yaml:"type" toml:"type"`
	Directories []string   `yaml:"directories" toml:"directories"`
	Connection  Connection `yaml:"connection" toml:"connection"`
	Installer   string     `yaml:"installer" toml:"installer"`
}

// Incremental reports whether the configured backup type requests an incremental run.
func (b Backup) Incremental() bool {
	return strings.Contains(strings.ToLower(b.Type), "incremental")
}

// Config encapsulates all configuration values for dirconfig.
//
// Configuration sections:
//   - Settings: match policy, debounce window, initial scan
//   - Tasks: ordered task variants, one per watched directory
//   - Backup: optional UrBackup client section
type Config struct {
	Settings Settings
	Tasks    []Task
	Backup   *Backup
}

type fileConfig struct {
	Settings fileSettings `yaml:"settings" toml:"settings"`
	Tasks    []fileTask   `yaml:"tasks" toml:"tasks"`
	Backup   *Backup      `yaml:"backup" toml:"backup"`
}

type fileSettings struct {
	MatchPolicy string `yaml:"match_policy" toml:"match_policy"`
	Debounce    string `yaml:"debounce" toml:"debounce"`
	ScanOnStart bool   `yaml:"scan_on_start" toml:"scan_on_start"`
}

type fileTask struct {
	Type   string     `yaml:"type" toml:"type"`
	Source string     `yaml:"source" toml:"source"`
	Rules  []fileRule `yaml:"rules" toml:"rules"`
}

type fileRule struct {
	Extension   string `yaml:"extension" toml:"extension"`
	Destination string `yaml:"destination" toml:"destination"`
}

// Load reads, parses, and validates the configuration file at path. A missing
// file yields an error matching ErrNotFound.
func Load(path string) (*Config, string, error) {
	resolved, err := expandPath(strings.TrimSpace(path))
	if err != nil {
		return nil, "", wrap(path, err)
	}
	if resolved == "" {
		return nil, "", wrap(path, errors.New("config path is empty"))
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, resolved, wrap(resolved, ErrNotFound)
		}
		return nil, resolved, wrap(resolved, fmt.Errorf("stat config: %w", err))
	}
	if info.IsDir() {
		return nil, resolved, wrap(resolved, fmt.Errorf("config path is a directory"))
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, resolved, wrap(resolved, fmt.Errorf("read config: %w", err))
	}

	cfg, err := Parse(data, formatFor(resolved))
	if err != nil {
		return nil, resolved, wrap(resolved, err)
	}
	return cfg, resolved, nil
}

// Format identifies the encoding of a configuration document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes a configuration document, then normalizes and validates it.
func Parse(data []byte, format Format) (*Config, error) {
	var raw fileConfig
	switch format {
	case FormatTOML:
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("parse config: document is empty")
			}
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg, err := raw.build()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseExtensions splits a comma-separated extension list, trimming whitespace
// and dropping empty entries.
func ParseExtensions(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// CreateSample writes the sample configuration to path. Existing files are
// only replaced when force is set.
func CreateSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration document.
func Sample() string {
	return sampleConfig
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
