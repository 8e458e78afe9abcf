package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Tasks) == 0 {
		return errors.New("tasks: at least one task is required")
	}
	for i, task := range c.Tasks {
		switch t := task.(type) {
		case FileOrganizationTask:
			if err := t.validate(); err != nil {
				return fmt.Errorf("tasks[%d]: %w", i, err)
			}
		default:
			return fmt.Errorf("tasks[%d]: unsupported task variant %T", i, task)
		}
	}
	if c.Backup != nil {
		if err := c.Backup.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t FileOrganizationTask) validate() error {
	if t.Source == "" {
		return errors.New("source must be set")
	}
	if len(t.Rules) == 0 {
		return errors.New("rules: at least one rule is required")
	}
	for i, rule := range t.Rules {
		if len(rule.Extensions) == 0 {
			return fmt.Errorf("rules[%d].extension must list at least one extension", i)
		}
		for _, ext := range rule.Extensions {
			if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
				return fmt.Errorf("rules[%d].extension: %q must start with a dot", i, ext)
			}
		}
		if rule.Destination == "" {
			return fmt.Errorf("rules[%d].destination must be set", i)
		}
	}
	return nil
}

func (b Backup) validate() error {
	if b.Name == "" {
		return errors.New("backup.name must be set when backup is configured")
	}
	return nil
}
