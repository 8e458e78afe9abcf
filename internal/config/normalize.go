package config

import (
	"fmt"
	"strings"
	"time"
)

func (raw fileConfig) build() (*Config, error) {
	settings, err := raw.Settings.normalize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{Settings: settings}
	for i, task := range raw.Tasks {
		built, err := task.build()
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		cfg.Tasks = append(cfg.Tasks, built)
	}

	if raw.Backup != nil {
		backup := raw.Backup.normalize()
		cfg.Backup = &backup
	}
	return cfg, nil
}

func (s fileSettings) normalize() (Settings, error) {
	out := DefaultSettings()
	out.ScanOnStart = s.ScanOnStart

	switch policy := MatchPolicy(strings.ToLower(strings.TrimSpace(s.MatchPolicy))); policy {
	case "":
	case MatchFirst, MatchAll:
		out.MatchPolicy = policy
	default:
		return Settings{}, fmt.Errorf("settings.match_policy: unsupported value %q (want %q or %q)", s.MatchPolicy, MatchFirst, MatchAll)
	}

	if value := strings.TrimSpace(s.Debounce); value != "" {
		debounce, err := time.ParseDuration(value)
		if err != nil {
			return Settings{}, fmt.Errorf("settings.debounce: %w", err)
		}
		if debounce < 0 {
			return Settings{}, fmt.Errorf("settings.debounce: must not be negative")
		}
		out.Debounce = debounce
	}
	return out, nil
}

// build converts the loosely typed `type` field into a task variant.
func (t fileTask) build() (Task, error) {
	switch TaskKind(strings.TrimSpace(t.Type)) {
	case KindFileOrganization:
		task := FileOrganizationTask{Source: strings.TrimSpace(t.Source)}
		for _, rule := range t.Rules {
			task.Rules = append(task.Rules, Rule{
				Extensions:  ParseExtensions(rule.Extension),
				Destination: strings.TrimSpace(rule.Destination),
			})
		}
		return task, nil
	case "":
		return nil, fmt.Errorf("type is required")
	default:
		return nil, fmt.Errorf("unsupported task type %q", t.Type)
	}
}

func (b Backup) normalize() Backup {
	out := b
	out.Name = strings.TrimSpace(b.Name)
	out.Type = strings.TrimSpace(b.Type)
	if out.Type == "" {
		out.Type = defaultBackupType
	}
	out.Installer = strings.TrimSpace(b.Installer)
	out.Connection.Server = strings.TrimSpace(b.Connection.Server)
	out.Directories = make([]string, 0, len(b.Directories))
	for _, dir := range b.Directories {
		if trimmed := strings.TrimSpace(dir); trimmed != "" {
			out.Directories = append(out.Directories, trimmed)
		}
	}
	return out
}
