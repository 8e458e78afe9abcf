// Package watcher turns filesystem notifications under the task source
// directories into organize passes.
//
// A Watcher subscribes recursively to each source directory and delivers
// events on a single goroutine. Events arriving inside the debounce window
// are coalesced into one Batch. The Dispatcher reacts to every batch by
// organizing all file-organization tasks, not only the one whose directory
// produced the event, and isolates failures so one bad task cannot stop the
// others or the event goroutine.
package watcher
