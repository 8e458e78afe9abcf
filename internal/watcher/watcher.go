package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"dirconfig/internal/logging"
	"dirconfig/internal/organizer"
)

// ErrNoWatchableSources is returned by Start when none of the requested
// directories could be watched.
var ErrNoWatchableSources = errors.New("no source directory could be watched")

// New creates a Watcher. Nothing is watched until Start.
func New(options Options) (*Watcher, error) {
	if options.Handler == nil {
		return nil, errors.New("watcher: handler is required")
	}
	if options.Debounce < 0 {
		return nil, fmt.Errorf("watcher: debounce must not be negative, got %s", options.Debounce)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher:  fsw,
		handler:  options.Handler,
		debounce: options.Debounce,
		logger:   logging.NewComponentLogger(options.Logger, "watcher"),
		watched:  make(map[string]struct{}),
		events:   make(chan fsnotify.Event, 16),
		errors:   make(chan error, 4),
		trigger:  make(chan struct{}, 1),
		lost:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start subscribes recursively to every directory in dirs and launches the
// event goroutine. Directories that cannot be watched are logged and skipped;
// Start fails only when none can be watched. ctx supplies values to the
// handler; cancelling it does not stop the watcher, Stop does.
func (watcher *Watcher) Start(ctx context.Context, dirs []string) error {
	if !watcher.started.CompareAndSwap(false, true) {
		return errors.New("watcher: already started")
	}

	var failures []error
	roots := 0
	for _, dir := range dirs {
		if err := watcher.addRoot(dir); err != nil {
			pathErr := &organizer.PathError{Path: dir, Err: err}
			failures = append(failures, pathErr)
			logging.ErrorWithContext(watcher.logger, "source directory not watched", "watch_failed",
				logging.String(logging.FieldSource, dir),
				logging.String(logging.FieldErrorHint, "create the directory or fix its permissions, then restart"),
				logging.Error(pathErr),
			)
			continue
		}
		roots++
	}
	if roots == 0 {
		_ = watcher.watcher.Close()
		if len(failures) == 0 {
			return ErrNoWatchableSources
		}
		return fmt.Errorf("%w: %w", ErrNoWatchableSources, errors.Join(failures...))
	}

	watcher.alive.Store(true)
	watcher.wg.Add(2)
	go watcher.forward()
	go watcher.run(context.WithoutCancel(ctx))
	watcher.logger.Info("watching source directories",
		logging.Int("sources", roots),
		logging.Int("watches", watcher.activeWatches()),
		logging.Duration("debounce", watcher.debounce),
	)
	return nil
}

// Stop halts monitoring and blocks until the event goroutine has exited,
// letting an in-flight handler call finish first. It is safe to call more
// than once.
func (watcher *Watcher) Stop() error {
	var err error
	watcher.stopOnce.Do(func() {
		close(watcher.done)
		watcher.wg.Wait()
		err = watcher.watcher.Close()
		watcher.alive.Store(false)
	})
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}

// Trigger queues a full pass on the event goroutine, as if a batch had just
// settled. Passes never overlap with event-driven ones. Triggers that arrive
// while one is already queued collapse into it.
func (watcher *Watcher) Trigger() {
	select {
	case watcher.trigger <- struct{}{}:
	default:
	}
}

// Alive reports whether the event goroutine is running.
func (watcher *Watcher) Alive() bool {
	return watcher.alive.Load()
}

// Metrics reports current watcher counters.
func (watcher *Watcher) Metrics() Metrics {
	return Metrics{
		ActiveWatches:   watcher.activeWatches(),
		EventsReceived:  watcher.eventsReceived.Load(),
		BatchesHandled:  watcher.batchesHandled.Load(),
		Errors:          watcher.errorCount.Load(),
		HandlerFailures: watcher.handlerFailures.Load(),
	}
}

func (watcher *Watcher) forward() {
	defer watcher.wg.Done()
	for {
		select {
		case event, ok := <-watcher.watcher.Events:
			if !ok {
				close(watcher.lost)
				return
			}
			select {
			case watcher.events <- event:
			case <-watcher.done:
				return
			}
		case err, ok := <-watcher.watcher.Errors:
			if !ok {
				close(watcher.lost)
				return
			}
			select {
			case watcher.errors <- err:
			case <-watcher.done:
				return
			}
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) run(ctx context.Context) {
	defer watcher.wg.Done()
	defer watcher.alive.Store(false)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending Batch
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-watcher.done:
			if pending.Count > 0 {
				watcher.logger.Debug("discarding pending events on stop", logging.Int("events", pending.Count))
			}
			return
		case <-watcher.lost:
			watcher.logger.Error("filesystem notification stream closed",
				logging.String(logging.FieldEventType, "watcher_lost"),
				logging.String(logging.FieldErrorHint, "restart the daemon"),
			)
			return
		case raw := <-watcher.events:
			watcher.eventsReceived.Add(1)
			watcher.track(raw)
			pending.Last = Event{Path: raw.Name, Op: raw.Op, Timestamp: time.Now().UTC()}
			pending.Count++
			if watcher.debounce <= 0 {
				watcher.deliver(ctx, pending)
				pending = Batch{}
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watcher.debounce)
			} else {
				timer.Reset(watcher.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			watcher.deliver(ctx, pending)
			pending = Batch{}
		case <-watcher.trigger:
			// The pass covers whatever the pending events described.
			if timer != nil && timerC != nil {
				timer.Stop()
				timerC = nil
			}
			batch := pending
			batch.Count++
			if batch.Last.Timestamp.IsZero() {
				batch.Last.Timestamp = time.Now().UTC()
			}
			watcher.deliver(ctx, batch)
			pending = Batch{}
		case err := <-watcher.errors:
			watcher.errorCount.Add(1)
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; a blanket pass picks up whatever they described.
				watcher.logger.Warn("event queue overflowed, rescanning",
					logging.String(logging.FieldEventType, "watch_overflow"),
					logging.Error(err),
				)
				watcher.deliver(ctx, Batch{Last: Event{Timestamp: time.Now().UTC()}, Count: 1})
				continue
			}
			watcher.logger.Warn("watch error",
				logging.String(logging.FieldEventType, "watch_error"),
				logging.Error(err),
			)
		}
	}
}

func (watcher *Watcher) deliver(ctx context.Context, batch Batch) {
	defer func() {
		if r := recover(); r != nil {
			watcher.handlerFailures.Add(1)
			logging.ErrorWithContext(watcher.logger, "event handler panicked", "handler_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldPath, batch.Last.Path),
			)
		}
	}()
	watcher.logger.Debug("dispatching events",
		logging.Int("events", batch.Count),
		logging.String(logging.FieldPath, batch.Last.Path),
		logging.String("op", batch.Last.Op.String()),
	)
	watcher.handler.HandleEvents(ctx, batch)
	watcher.batchesHandled.Add(1)
}

// track keeps the watch set in step with the tree: new directories are
// subscribed, removed ones forgotten.
func (watcher *Watcher) track(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil || !info.IsDir() {
			return
		}
		if err := watcher.addTree(event.Name); err != nil {
			watcher.logger.Warn("watch add failed",
				logging.String(logging.FieldPath, event.Name),
				logging.Error(err),
			)
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		watcher.forget(event.Name)
	}
}
