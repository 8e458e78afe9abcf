package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dirconfig/internal/config"
	"dirconfig/internal/fileutil"
	"dirconfig/internal/logging"
)

// Move describes one attempted move. Err is nil for successful moves.
type Move struct {
	Source  string
	Entry   string
	From    string
	To      string
	MovedAt time.Time
	Err     error
}

// Result summarizes one Organize call.
type Result struct {
	Source string
	Moved  []Move
	Failed []error
}

// Recorder persists move attempts. Implementations must be safe for use from
// the watcher goroutine.
type Recorder interface {
	RecordMove(ctx context.Context, move Move) error
}

// Options configures an Organizer.
type Options struct {
	Policy config.MatchPolicy
	// Cwd anchors dot-prefixed task sources. Empty means the process working
	// directory at construction time.
	Cwd      string
	Logger   *slog.Logger
	Recorder Recorder
}

// Organizer moves files out of task source directories according to rules.
type Organizer struct {
	policy   config.MatchPolicy
	cwd      string
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// New builds an Organizer.
func New(opts Options) (*Organizer, error) {
	policy := opts.Policy
	if policy == "" {
		policy = config.MatchFirst
	}
	if policy != config.MatchFirst && policy != config.MatchAll {
		return nil, fmt.Errorf("organizer: unsupported match policy %q", policy)
	}
	cwd := opts.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("organizer: resolve working directory: %w", err)
		}
		cwd = wd
	}
	return &Organizer{
		policy:   policy,
		cwd:      cwd,
		logger:   logging.NewComponentLogger(opts.Logger, "organizer"),
		recorder: opts.Recorder,
		now:      time.Now,
	}, nil
}

// Policy returns the match policy in effect.
func (o *Organizer) Policy() config.MatchPolicy { return o.policy }

// SourceDir resolves a task source the same way Organize does.
func (o *Organizer) SourceDir(task config.FileOrganizationTask) (string, error) {
	return task.ResolveSource(o.cwd)
}

// Organize applies task's rules to the immediate entries of its source
// directory. The returned error is non-nil only when the source itself is
// unusable; per-entry failures are logged and reported in Result.Failed.
func (o *Organizer) Organize(ctx context.Context, task config.FileOrganizationTask) (Result, error) {
	sourcePath, err := o.SourceDir(task)
	if err != nil {
		return Result{}, &PathError{Path: task.Source, Err: err}
	}
	result := Result{Source: sourcePath}

	entries, err := os.ReadDir(sourcePath)
	if err != nil {
		return result, &PathError{Path: sourcePath, Err: err}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext == "" {
			continue
		}
		for _, rule := range task.Rules {
			if !rule.Matches(ext) {
				continue
			}
			move := o.moveEntry(sourcePath, name, rule)
			o.record(ctx, move)
			if move.Err != nil {
				result.Failed = append(result.Failed, move.Err)
			} else if move.From != move.To {
				result.Moved = append(result.Moved, move)
			}
			if o.policy == config.MatchFirst {
				break
			}
		}
	}
	return result, nil
}

func (o *Organizer) moveEntry(sourcePath, name string, rule config.Rule) Move {
	destDir := rule.ResolveDestination(sourcePath)
	move := Move{
		Source: sourcePath,
		Entry:  name,
		From:   filepath.Join(sourcePath, name),
		To:     filepath.Join(destDir, name),
	}
	if move.From == move.To {
		return move
	}

	fail := func(err error) Move {
		move.Err = &MoveError{Entry: name, From: move.From, To: move.To, Err: err}
		move.MovedAt = o.now()
		o.logger.Error("move failed",
			logging.String(logging.FieldEventType, "move_failed"),
			logging.String(logging.FieldErrorHint, "check destination permissions and that the entry still exists"),
			logging.String(logging.FieldSource, sourcePath),
			logging.String("entry", name),
			logging.String("destination", move.To),
			logging.Error(err),
		)
		return move
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fail(fmt.Errorf("create destination: %w", err))
	}
	if info, err := os.Stat(move.To); err == nil && info.IsDir() {
		return fail(fmt.Errorf("destination %s is a directory", move.To))
	}
	if err := fileutil.MoveFile(move.From, move.To); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("entry already gone: %w", err)
		}
		return fail(err)
	}
	move.MovedAt = o.now()
	o.logger.Info(fmt.Sprintf("Moved: %s -> %s", name, move.To),
		logging.String(logging.FieldEventType, "file_moved"),
		logging.String(logging.FieldSource, sourcePath),
	)
	return move
}

func (o *Organizer) record(ctx context.Context, move Move) {
	if o.recorder == nil || move.From == move.To {
		return
	}
	if err := o.recorder.RecordMove(ctx, move); err != nil {
		logging.WarnWithContext(o.logger, "journal write failed", "journal_write_failed",
			logging.String(logging.FieldPath, move.From),
			logging.String(logging.FieldImpact, "move history is incomplete"),
			logging.Error(err),
		)
	}
}
