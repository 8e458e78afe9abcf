package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"dirconfig/internal/config"
	"dirconfig/internal/deps"
	"dirconfig/internal/logging"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  func(name string, args []string) bool
	done  chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.done != nil && len(args) > 0 && args[0] == "start" {
		defer close(f.done)
	}
	if f.fail != nil && f.fail(name, args) {
		return Output{Stderr: "boom", ExitCode: 1}, errors.New("exit status 1")
	}
	return Output{Stdout: "ok"}, nil
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, strings.Join(call, " "))
	}
	return out
}

func alwaysAvailable(req deps.Requirement) deps.Status {
	return deps.Status{Name: req.Name, Command: req.Command, Available: true}
}

func backupConfig() config.Backup {
	return config.Backup{
		Name:        "laptop",
		Type:        "incremental-file",
		Directories: []string{"/srv/documents", "/srv/images"},
	}
}

func TestClientCommand(t *testing.T) {
	if got := ClientCommand("linux"); got != "urbackupclientctl" {
		t.Fatalf("unexpected linux command %q", got)
	}
	if got := ClientCommand("windows"); got != "urbackupclient_cmd" {
		t.Fatalf("unexpected windows command %q", got)
	}
}

func TestRunIncrementalSequence(t *testing.T) {
	runner := &fakeRunner{}
	client := NewClient(backupConfig(), logging.NewNop(),
		WithRunner(runner), WithGOOS("linux"), WithBinaryCheck(alwaysAvailable))

	if err := client.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{
		"urbackupclientctl status",
		"urbackupclientctl add-backupdir --path /srv/documents",
		"urbackupclientctl add-backupdir --path /srv/images",
		"urbackupclientctl start -i --non-blocking --client laptop",
	}
	if got := runner.commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected commands:\n got %v\nwant %v", got, want)
	}
}

func TestRunFullBackupUsesFullFlag(t *testing.T) {
	cfg := backupConfig()
	cfg.Type = "full-file"
	cfg.Directories = nil
	runner := &fakeRunner{}
	client := NewClient(cfg, logging.NewNop(), WithRunner(runner), WithGOOS("linux"), WithBinaryCheck(alwaysAvailable))

	if err := client.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := runner.commands()
	if last := got[len(got)-1]; last != "urbackupclientctl start -f --non-blocking --client laptop" {
		t.Fatalf("unexpected start command %q", last)
	}
}

func TestRunContinuesAfterDirectoryFailure(t *testing.T) {
	runner := &fakeRunner{fail: func(_ string, args []string) bool {
		return len(args) == 3 && args[2] == "/srv/documents"
	}}
	client := NewClient(backupConfig(), logging.NewNop(), WithRunner(runner), WithGOOS("linux"), WithBinaryCheck(alwaysAvailable))

	err := client.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "/srv/documents") {
		t.Fatalf("expected directory failure reported, got %v", err)
	}
	got := runner.commands()
	if len(got) != 4 || !strings.HasPrefix(got[3], "urbackupclientctl start") {
		t.Fatalf("expected backup still started, got %v", got)
	}
}

func TestEnsureInstalledRunsInstaller(t *testing.T) {
	installer := filepath.Join(t.TempDir(), "urbackup_client_installer.sh")
	if err := os.WriteFile(installer, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := backupConfig()
	cfg.Installer = installer

	statusCalls := 0
	runner := &fakeRunner{fail: func(_ string, args []string) bool {
		if len(args) == 1 && args[0] == "status" {
			statusCalls++
			return statusCalls == 1
		}
		return false
	}}
	client := NewClient(cfg, logging.NewNop(), WithRunner(runner), WithGOOS("linux"), WithBinaryCheck(alwaysAvailable))

	if err := client.EnsureInstalled(context.Background()); err != nil {
		t.Fatalf("EnsureInstalled: %v", err)
	}
	want := []string{"urbackupclientctl status", installer, "urbackupclientctl status"}
	if got := runner.commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected commands:\n got %v\nwant %v", got, want)
	}
	info, err := os.Stat(installer)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("installer not made executable: %o", info.Mode().Perm())
	}
}

func TestEnsureInstalledWindowsAddsToPath(t *testing.T) {
	cfg := backupConfig()
	cfg.Installer = `C:\Downloads\urbackup_client_installer.exe`

	checked := 0
	check := func(req deps.Requirement) deps.Status {
		checked++
		// Not on PATH before install; addressed by full path afterwards.
		return deps.Status{Command: req.Command, Available: checked > 1, Detail: "binary not found"}
	}
	runner := &fakeRunner{}
	client := NewClient(cfg, logging.NewNop(), WithRunner(runner), WithGOOS("windows"), WithBinaryCheck(check))

	if err := client.EnsureInstalled(context.Background()); err != nil {
		t.Fatalf("EnsureInstalled: %v", err)
	}
	got := runner.commands()
	if len(got) != 3 {
		t.Fatalf("expected installer, powershell, status; got %v", got)
	}
	if got[0] != cfg.Installer {
		t.Fatalf("expected installer first, got %q", got[0])
	}
	if !strings.HasPrefix(got[1], "powershell -Command ") || !strings.Contains(got[1], `C:\Program Files\UrBackup\`) {
		t.Fatalf("unexpected PATH command %q", got[1])
	}
	if got[2] != `C:\Program Files\UrBackup\urbackupclient_cmd.exe status` {
		t.Fatalf("unexpected post-install status %q", got[2])
	}
}

func TestEnsureInstalledWithoutInstaller(t *testing.T) {
	runner := &fakeRunner{fail: func(string, []string) bool { return true }}
	client := NewClient(backupConfig(), logging.NewNop(), WithRunner(runner), WithGOOS("linux"), WithBinaryCheck(alwaysAvailable))

	err := client.Run(context.Background())
	if !errors.Is(err, ErrClientUnavailable) {
		t.Fatalf("expected ErrClientUnavailable, got %v", err)
	}
	if got := runner.commands(); len(got) != 1 {
		t.Fatalf("expected sequence to stop after status, got %v", got)
	}
}

func TestStartIsFireAndForget(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{})}
	cfg := backupConfig()

	Start(context.Background(), &cfg, logging.NewNop(), WithRunner(runner), WithGOOS("linux"), WithBinaryCheck(alwaysAvailable))

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("backup sequence never reached start")
	}
	Start(context.Background(), nil, logging.NewNop())
}

func TestPathScriptQuotesEntry(t *testing.T) {
	script := pathScript(`C:\O'Neil\`)
	if !strings.Contains(script, `'C:\O''Neil\'`) {
		t.Fatalf("entry not quoted for PowerShell: %s", script)
	}
}
