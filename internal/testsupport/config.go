package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"dirconfig/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config with one file-organization task whose source is
// a fresh temp directory. The default rules send .pdf to documents and
// .jpg/.jpeg to images.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Config{
		Settings: config.DefaultSettings(),
		Tasks: []config.Task{config.FileOrganizationTask{
			Source: filepath.Join(base, "source"),
			Rules: []config.Rule{
				{Extensions: []string{".pdf"}, Destination: "documents"},
				{Extensions: []string{".jpg", ".jpeg"}, Destination: "images"},
			},
		}},
	}

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithMatchPolicy overrides the match policy.
func WithMatchPolicy(policy config.MatchPolicy) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Settings.MatchPolicy = policy
	}
}

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Settings.Debounce = d
	}
}

// WithTask appends a task whose source is a named temp subdirectory.
func WithTask(name string, rules ...config.Rule) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tasks = append(b.cfg.Tasks, config.FileOrganizationTask{
			Source: filepath.Join(b.baseDir, name),
			Rules:  rules,
		})
	}
}

// SourceDirs returns the source of every file-organization task in order.
func SourceDirs(cfg *config.Config) []string {
	tasks := config.FileOrganizationTasks(cfg.Tasks)
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Source)
	}
	return out
}
