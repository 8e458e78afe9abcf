package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCopyFileMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "install.sh")
	dst := filepath.Join(dir, "install-copy.sh")

	if err := os.WriteFile(src, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFileMode(src, dst, 0o755); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	// umask may clear some bits.
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatalf("expected executable bits, got %o", info.Mode().Perm())
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "#!/bin/sh\n" {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestMoveFileRenames(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pdf")
	dst := filepath.Join(dir, "a-moved.pdf")
	if err := os.WriteFile(src, []byte("pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source gone, stat err = %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "pdf" {
		t.Fatalf("unexpected destination content %q (err %v)", got, err)
	}
}

func TestMoveFileOverwritesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.doc")
	dst := filepath.Join(dir, "old.doc")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "new" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}

func TestMoveFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := MoveFile(filepath.Join(dir, "gone.txt"), filepath.Join(dir, "dst.txt"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestIsCrossDevice(t *testing.T) {
	linkErr := &os.LinkError{Op: "rename", Old: "/a", New: "/mnt/b", Err: unix.EXDEV}
	if !IsCrossDevice(linkErr) {
		t.Fatal("expected EXDEV link error to be cross-device")
	}
	if !IsCrossDevice(fmt.Errorf("wrapped: %w", linkErr)) {
		t.Fatal("expected wrapped EXDEV to be cross-device")
	}
	if IsCrossDevice(&os.LinkError{Op: "rename", Err: unix.EACCES}) {
		t.Fatal("EACCES is not a cross-device failure")
	}
}
