package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dirconfig/internal/config"
	"dirconfig/internal/logging"
	"dirconfig/internal/organizer"
)

// Organizer is the part of organizer.Organizer the dispatcher needs.
type Organizer interface {
	Organize(ctx context.Context, task config.FileOrganizationTask) (organizer.Result, error)
}

// Dispatcher organizes every file-organization task whenever the watcher
// reports activity anywhere in any watched tree.
type Dispatcher struct {
	tasks     []config.FileOrganizationTask
	organizer Organizer
	logger    *slog.Logger
}

// NewDispatcher builds a dispatcher over the file-organization subset of tasks.
func NewDispatcher(tasks []config.Task, org Organizer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tasks:     config.FileOrganizationTasks(tasks),
		organizer: org,
		logger:    logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Tasks returns the tasks the dispatcher organizes, in configuration order.
func (d *Dispatcher) Tasks() []config.FileOrganizationTask {
	return append([]config.FileOrganizationTask(nil), d.tasks...)
}

// HandleEvents implements Handler. The triggering event only matters for
// logging; every task is organized.
func (d *Dispatcher) HandleEvents(ctx context.Context, batch Batch) {
	d.logger.Debug("filesystem activity",
		logging.String(logging.FieldPath, batch.Last.Path),
		logging.Int("events", batch.Count),
	)
	d.OrganizeAll(ctx)
}

// OrganizeAll organizes each task in turn. Failures, including panics, are
// logged and returned but never stop the remaining tasks.
func (d *Dispatcher) OrganizeAll(ctx context.Context) []error {
	var failures []error
	for _, task := range d.tasks {
		result, err := d.organizeTask(ctx, task)
		if err != nil {
			failures = append(failures, err)
			attrs := []logging.Attr{
				logging.String(logging.FieldSource, task.Source),
				logging.Error(err),
			}
			if errors.Is(err, organizer.ErrPath) {
				attrs = append(attrs, logging.String(logging.FieldErrorHint, "check that the source directory exists and is readable"))
			}
			logging.ErrorWithContext(d.logger, "organize failed", "organize_failed", attrs...)
			continue
		}
		failures = append(failures, result.Failed...)
		if len(result.Moved) > 0 || len(result.Failed) > 0 {
			d.logger.Debug("organize complete",
				logging.String(logging.FieldSource, result.Source),
				logging.Int("moved", len(result.Moved)),
				logging.Int("failed", len(result.Failed)),
			)
		}
	}
	return failures
}

func (d *Dispatcher) organizeTask(ctx context.Context, task config.FileOrganizationTask) (result organizer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("organize %s panicked: %v", task.Source, r)
		}
	}()
	return d.organizer.Organize(ctx, task)
}
