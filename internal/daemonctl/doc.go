// Package daemonctl controls a running dirconfig daemon from another process.
//
// The PID file is the only channel between the two: Stop reads it and sends
// SIGTERM, Status combines it with the daemon's instance lock to tell a live
// daemon from a stale file, and Launch starts a detached daemon for
// `start --detach`.
package daemonctl
