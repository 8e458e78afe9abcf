// Package preflight provides readiness checks for the filesystem paths and the
// backup server a configuration depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs each failure as a warning.
//     A failing source is still skipped later by the watcher, so nothing halts.
//   - The CLI "dirconfig validate" command renders every result.
package preflight
