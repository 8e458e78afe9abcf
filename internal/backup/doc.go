// Package backup drives the UrBackup client command-line tool.
//
// Start launches the whole sequence on its own goroutine and returns at once:
// make sure the client answers `status` (running the configured installer when
// it does not), register every backup directory, then ask for a non-blocking
// incremental or full file backup. Failures are logged and never reach the
// daemon.
package backup
