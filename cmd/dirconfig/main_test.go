package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"dirconfig/internal/config"
	"dirconfig/internal/journal"
	"dirconfig/internal/organizer"
	"dirconfig/internal/testsupport"
)

// syncBuffer is a thread-safe wrapper around bytes.Buffer for use in tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runCLI(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(out)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func writeConfig(t *testing.T, dir, source string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	testsupport.WriteFile(t, path, strings.Join([]string{
		"settings:",
		"  debounce: 20ms",
		"tasks:",
		"  - type: file-organization",
		"    source: '" + source + "'",
		"    rules:",
		"      - extension: .pdf",
		"        destination: documents",
		"",
	}, "\n"))
	return path
}

func readLogFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestStopWithoutPIDFile(t *testing.T) {
	dir := t.TempDir()
	pid := filepath.Join(dir, "dirconfig.pid")
	logPath := filepath.Join(dir, "dirconfig.log")
	_, err := runCLI(context.Background(), t, "stop", "--pid", pid, "--log", logPath)
	if err == nil || err.Error() != "PID file not found. Is the daemon running?" {
		t.Fatalf("unexpected error %v", err)
	}
	out := readLogFile(t, logPath)
	requireContains(t, out, `"level":"error"`)
	requireContains(t, out, "PID file not found. Is the daemon running?")
}

func TestStopStalePID(t *testing.T) {
	pid := filepath.Join(t.TempDir(), "dirconfig.pid")
	// PID values above the kernel's pid_max never name a live process.
	testsupport.WriteFile(t, pid, strconv.Itoa(1<<30)+"\n")
	logPath := filepath.Join(filepath.Dir(pid), "dirconfig.log")
	_, err := runCLI(context.Background(), t, "stop", "--pid", pid, "--log", logPath)
	if err == nil || err.Error() != "Process not found. It may have been stopped already." {
		t.Fatalf("unexpected error %v", err)
	}
	requireContains(t, readLogFile(t, logPath), "Process not found")
}

func TestStartWithMissingConfig(t *testing.T) {
	dir := t.TempDir()
	pid := filepath.Join(dir, "dirconfig.pid")
	logPath := filepath.Join(dir, "dirconfig.log")
	db := filepath.Join(dir, "dirconfig.db")

	_, err := runCLI(context.Background(), t, "start",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--pid", pid, "--log", logPath, "--journal", db)
	if !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	requireContains(t, err.Error(), "Configuration file not found")
	testsupport.AssertMissing(t, pid)
	testsupport.AssertMissing(t, db)
	out := readLogFile(t, logPath)
	requireContains(t, out, `"event_type":"config_invalid"`)
	requireContains(t, out, "Configuration file not found")
}

func TestStartRunsUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "inbox")
	if err := os.MkdirAll(source, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := writeConfig(t, dir, source)
	pid := filepath.Join(dir, "dirconfig.pid")
	logPath := filepath.Join(dir, "dirconfig.log")
	db := filepath.Join(dir, "dirconfig.db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := runCLI(ctx, t, "start", "--config", cfgPath, "--pid", pid,
			"--log", logPath, "--journal", db, "--log-format", "json")
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(pid); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pid file never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	testsupport.Touch(t, source, "report.pdf")
	target := filepath.Join(source, "documents", "report.pdf")
	for {
		if _, err := os.Stat(target); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("file was not organized")
		}
		time.Sleep(10 * time.Millisecond)
	}

	statusOut, err := runCLI(context.Background(), t, "status", "--pid", pid)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, statusOut, "Running (pid "+strconv.Itoa(os.Getpid())+")")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	testsupport.AssertMissing(t, pid)

	logData, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	requireContains(t, string(logData), "Moved: report.pdf")

	history, err := runCLI(context.Background(), t, "history", "--journal", db)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, history, "report.pdf")
	requireContains(t, history, "moved")
}

func TestStatusWithoutDaemon(t *testing.T) {
	pid := filepath.Join(t.TempDir(), "dirconfig.pid")
	out, err := runCLI(context.Background(), t, "status", "--pid", pid)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "UrBackup client")
}

func TestGenerateWritesLoadableConfig(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.yaml")
	out, err := runCLI(context.Background(), t, "generate", "--output", target)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := config.Load(target); err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}

	if _, err := runCLI(context.Background(), t, "generate", "--output", target); err == nil {
		t.Fatal("expected refusal to overwrite without --force")
	}
	if _, err := runCLI(context.Background(), t, "generate", "--output", target, "--force"); err != nil {
		t.Fatalf("generate --force: %v", err)
	}
}

func TestValidateRendersTasks(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "./inbox")
	out, err := runCLI(context.Background(), t, "validate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	requireContains(t, out, "file-organization")
	requireContains(t, out, "./inbox")
	requireContains(t, out, ".pdf")
	requireContains(t, out, "documents")
	requireContains(t, out, "Match policy: first-match")
	requireContains(t, out, "Task 1 source:")
	requireContains(t, out, "[WARN]")
	requireContains(t, out, "Configuration valid")
}

func TestValidateRejectsUnknownTaskType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	testsupport.WriteFile(t, path, "tasks:\n  - type: compress\n    source: ./x\n")
	if _, err := runCLI(context.Background(), t, "validate", "--config", path); !errors.Is(err, config.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestHistoryListsFailures(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dirconfig.db")
	store, err := journal.Open(db)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	runID := journal.NewRunID()
	ctx := context.Background()
	if err := store.BeginRun(ctx, journal.Run{ID: runID, PID: 1}); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	rec := store.Recorder(runID)
	_ = rec.RecordMove(ctx, organizer.Move{Source: "/in", Entry: "a.pdf", From: "/in/a.pdf", To: "/in/documents/a.pdf"})
	_ = rec.RecordMove(ctx, organizer.Move{Source: "/in", Entry: "b.pdf", From: "/in/b.pdf", To: "/in/documents/b.pdf", Err: errors.New("permission denied")})
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(ctx, t, "history", "--journal", db, "--limit", "1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "b.pdf")
	requireContains(t, out, "failed: permission denied")
	if strings.Contains(out, "a.pdf") {
		t.Fatalf("limit ignored:\n%s", out)
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dirconfig.db")
	out, err := runCLI(context.Background(), t, "history", "--journal", db)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No journal at")
	testsupport.AssertMissing(t, db)
}

func TestLogsShowsTrailingLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "dirconfig.log")
	testsupport.WriteFile(t, logPath, "first\nsecond\nthird\n")
	out, err := runCLI(context.Background(), t, "logs", "--log", logPath, "--lines", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected output %q", out)
	}
}
