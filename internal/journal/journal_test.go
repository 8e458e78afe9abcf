package journal_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"dirconfig/internal/config"
	"dirconfig/internal/journal"
	"dirconfig/internal/logging"
	"dirconfig/internal/organizer"
	"dirconfig/internal/testsupport"
)

func TestRecorderPersistsMoves(t *testing.T) {
	store := testsupport.MustOpenJournal(t)
	ctx := context.Background()
	runID := journal.NewRunID()
	if _, err := uuid.Parse(runID); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", runID, err)
	}

	recorder := store.Recorder(runID)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := recorder.RecordMove(ctx, organizer.Move{
		Source: "/srv/inbox", Entry: "a.pdf",
		From: "/srv/inbox/a.pdf", To: "/srv/inbox/documents/a.pdf", MovedAt: at,
	}); err != nil {
		t.Fatalf("RecordMove: %v", err)
	}
	if err := recorder.RecordMove(ctx, organizer.Move{
		Source: "/srv/inbox", Entry: "a.pdf",
		From: "/srv/inbox/a.pdf", To: "/srv/inbox/second/a.pdf", MovedAt: at,
		Err: errors.New("entry already gone"),
	}); err != nil {
		t.Fatalf("RecordMove failure: %v", err)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	newest, oldest := entries[0], entries[1]
	if !newest.Failed() || newest.Error != "entry already gone" {
		t.Fatalf("expected newest entry to be the failure, got %+v", newest)
	}
	if oldest.Failed() || oldest.To != "/srv/inbox/documents/a.pdf" || oldest.RunID != runID {
		t.Fatalf("unexpected oldest entry %+v", oldest)
	}
	if !oldest.MovedAt.Equal(at) {
		t.Fatalf("unexpected moved_at %s", oldest.MovedAt)
	}
}

func TestRecentHonoursLimit(t *testing.T) {
	store := testsupport.MustOpenJournal(t)
	recorder := store.Recorder("run")
	for i := 0; i < 5; i++ {
		if err := recorder.RecordMove(context.Background(), organizer.Move{Source: "s", Entry: "e", From: "f", To: "t"}); err != nil {
			t.Fatalf("RecordMove: %v", err)
		}
	}
	entries, err := store.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected three entries, got %d", len(entries))
	}
	if entries[0].ID <= entries[1].ID {
		t.Fatalf("expected newest first, got ids %d then %d", entries[0].ID, entries[1].ID)
	}
}

func TestRunsLifecycle(t *testing.T) {
	store := testsupport.MustOpenJournal(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	if err := store.BeginRun(ctx, journal.Run{ID: "r1", PID: 42, ConfigPath: "/etc/dirconfig.yaml", StartedAt: started}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.EndRun(ctx, "r1", time.Now()); err != nil {
		t.Fatalf("EndRun: %v", err)
	}
	if err := store.EndRun(ctx, "missing", time.Now()); err == nil {
		t.Fatal("expected error ending unknown run")
	}

	runs, err := store.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].PID != 42 || runs[0].StoppedAt.IsZero() {
		t.Fatalf("unexpected runs %+v", runs)
	}
}

func TestOpenReopensExistingJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "dirconfig.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Recorder("r").RecordMove(context.Background(), organizer.Move{Source: "s", Entry: "e", From: "f", To: "t"}); err != nil {
		t.Fatalf("RecordMove: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.Recent(context.Background(), 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected persisted entry, got %v (err %v)", entries, err)
	}
}

func TestOrganizerWritesThroughJournal(t *testing.T) {
	store := testsupport.MustOpenJournal(t)
	source := t.TempDir()
	testsupport.Touch(t, source, "a.pdf", "b.jpg")

	org, err := organizer.New(organizer.Options{Logger: logging.NewNop(), Recorder: store.Recorder("run-1")})
	if err != nil {
		t.Fatalf("organizer.New: %v", err)
	}
	task := config.FileOrganizationTask{Source: source, Rules: []config.Rule{
		{Extensions: []string{".pdf"}, Destination: "documents"},
		{Extensions: []string{".jpg"}, Destination: "images"},
	}}
	if _, err := org.Organize(context.Background(), task); err != nil {
		t.Fatalf("Organize: %v", err)
	}

	entries, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two journal entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if _, err := os.Stat(entry.To); err != nil {
			t.Fatalf("journal points at missing file %s: %v", entry.To, err)
		}
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := journal.Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
