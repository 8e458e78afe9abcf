// Package logging assembles structured slog loggers and formatting helpers used
// across dirconfig.
//
// It owns the console and JSON handlers, fans a single record out to standard
// output and the daemon log file, and exposes attribute helpers plus field
// constants so the organizer, watcher, and daemon tag their lines the same
// way. The package also provides a no-op logger for tests and wiring code
// that cannot fail.
package logging
