package watcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event represents a single filesystem change.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Timestamp time.Time
}

// Batch is what the handler receives: the most recent event plus how many
// raw events were coalesced into it.
type Batch struct {
	Last  Event
	Count int
}

// Handler consumes batches on the watcher goroutine. It runs synchronously,
// so a slow handler delays delivery of later events.
type Handler interface {
	HandleEvents(ctx context.Context, batch Batch)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, batch Batch)

func (f HandlerFunc) HandleEvents(ctx context.Context, batch Batch) { f(ctx, batch) }

// Options controls watcher behavior.
type Options struct {
	Logger  *slog.Logger
	Handler Handler
	// Debounce coalesces events that arrive within the window. Zero
	// dispatches every event as its own batch.
	Debounce time.Duration
}

// Metrics reports watcher counters.
type Metrics struct {
	ActiveWatches   int
	EventsReceived  uint64
	BatchesHandled  uint64
	Errors          uint64
	HandlerFailures uint64
}

// Watcher is the fsnotify-backed recursive directory watcher.
type Watcher struct {
	watcher  *fsnotify.Watcher
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	mutex   sync.Mutex
	watched map[string]struct{}

	events  chan fsnotify.Event
	errors  chan error
	trigger chan struct{}
	lost    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	started  atomic.Bool
	alive    atomic.Bool
	stopOnce sync.Once

	eventsReceived  atomic.Uint64
	batchesHandled  atomic.Uint64
	errorCount      atomic.Uint64
	handlerFailures atomic.Uint64
}
