// Package journal keeps a SQLite history of daemon runs and the moves they
// performed.
//
// The organizer reports every attempted move through a Recorder bound to the
// current run; the history command reads the newest entries back.
package journal
