// Package logs reads the daemon log file for `dirconfig logs`.
//
// Last returns the final lines with bounded memory. Follow streams lines
// appended after an offset, waking on fsnotify write events for the file and
// restarting from the top when the file is truncated or recreated.
package logs
