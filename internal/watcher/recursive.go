package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dirconfig/internal/logging"
)

func (watcher *Watcher) addRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}
	return watcher.addTree(root)
}

// addTree subscribes root and every directory beneath it. Only a failure on
// root itself is returned; unreadable subdirectories are logged.
func (watcher *Watcher) addTree(root string) error {
	if err := watcher.addWatch(root); err != nil {
		return err
	}
	for _, dir := range collectRecursiveDirs(root) {
		if err := watcher.addWatch(dir); err != nil {
			watcher.logger.Warn("watch add failed",
				logging.String(logging.FieldPath, dir),
				logging.Error(err),
			)
		}
	}
	return nil
}

func collectRecursiveDirs(root string) []string {
	dirs := []string{}
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}

func (watcher *Watcher) addWatch(path string) error {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	if _, ok := watcher.watched[path]; ok {
		return nil
	}
	if err := watcher.watcher.Add(path); err != nil {
		return err
	}
	watcher.watched[path] = struct{}{}
	watcher.logger.Debug("watch added",
		logging.String(logging.FieldPath, path),
		logging.Int("active_watches", len(watcher.watched)),
	)
	return nil
}

// forget drops path and anything below it from the watch set. The kernel
// removes the underlying watches on its own when directories disappear.
func (watcher *Watcher) forget(path string) {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	prefix := path + string(filepath.Separator)
	for watched := range watcher.watched {
		if watched == path || strings.HasPrefix(watched, prefix) {
			delete(watcher.watched, watched)
		}
	}
}

func (watcher *Watcher) activeWatches() int {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return len(watcher.watched)
}

// Watched reports whether path is currently subscribed.
func (watcher *Watcher) Watched(path string) bool {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	_, ok := watcher.watched[path]
	return ok
}
