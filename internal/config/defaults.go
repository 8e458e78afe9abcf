package config

import "time"

const (
	defaultMatchPolicy = MatchFirst
	defaultDebounce    = 200 * time.Millisecond
	defaultBackupType  = "incremental-file"
)

// DefaultSettings returns Settings populated with repository defaults.
func DefaultSettings() Settings {
	return Settings{
		MatchPolicy: defaultMatchPolicy,
		Debounce:    defaultDebounce,
	}
}
