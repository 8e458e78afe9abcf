// Package main hosts the dirconfig CLI entrypoint and command graph.
//
// `start` runs the daemon in the foreground (or relaunches itself detached),
// `stop` and `status` talk to it through the PID file, and `generate`,
// `validate`, and `history` are offline utilities over the configuration file
// and the move journal.
package main
