// Package config loads, normalizes, and validates dirconfig configuration data.
//
// It reads YAML (or TOML, chosen by file extension) task files, expands user
// paths (including tilde shortcuts), and converts the loosely typed `type`
// field of each task into a concrete task variant. The Config type centralizes
// every knob the daemon and CLI need: the ordered task list, runtime settings
// such as the rule match policy and event debounce, and the optional backup
// section consumed by the backup collaborator.
//
// Always obtain settings through this package so downstream code receives
// parsed extension sets, canonical match policies, and clear validation errors.
package config
