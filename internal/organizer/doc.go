// Package organizer applies a task's extension rules to its source directory.
//
// One Organize call lists the immediate entries of the resolved source
// directory, matches each file's extension against the rules in order, and
// moves matches into their destination, creating directories as needed and
// replacing files of the same name. Subdirectories are never descended into.
// A missing source aborts the call with a PathError; per-entry failures are
// collected as MoveError values so the remaining entries are still processed.
package organizer
