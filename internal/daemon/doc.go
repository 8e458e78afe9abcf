// Package daemon runs the long-lived dirconfig process.
//
// A Daemon owns the watcher, the PID file and an flock-based instance lock.
// Run walks the Stopped, Starting, Running, Stopping states in order. Signal
// delivery only cancels a context; the supervision loop notices, or notices
// that the watcher died, and performs the shutdown itself so the PID file is
// removed and the watcher joined on every exit path.
package daemon
