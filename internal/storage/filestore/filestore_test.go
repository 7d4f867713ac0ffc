package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestStoreOpenTruncateWrite(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "log000.txt"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Open("log000.txt"); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 5 {
		t.Fatalf("expected existing size 5, got %d", s.Size())
	}
	if err := s.Truncate(0); err != nil {
		t.Fatal(err)
	}
	if n, err := s.Write([]byte("fresh\n")); n != 6 || err != nil {
		t.Fatalf("write: %d %v", n, err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "log000.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fresh\n" {
		t.Fatalf("unexpected file contents %q", got)
	}
	if s.ErrorCode() != 0 || s.ErrorData() != 0 {
		t.Fatal("error state reported without a failure")
	}
}

func TestStoreRename(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(nil, dir)
	if err := s.Open("a.txt"); err != nil {
		t.Fatal(err)
	}
	s.Write([]byte("x"))
	if err := s.Rename("b.txt"); err != nil {
		t.Fatal(err)
	}
	s.Write([]byte("y"))
	s.Close()

	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("old name still present: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "b.txt"))
	if string(got) != "xy" {
		t.Fatalf("unexpected contents %q", got)
	}
}

func TestStoreRenameRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "taken.txt"), nil, 0o644)
	s, _ := New(nil, dir)
	s.Open("a.txt")
	defer s.Close()

	if err := s.Rename("taken.txt"); !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	if err := s.Rename("../escape"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestStoreClosedOperations(t *testing.T) {
	s, _ := New(nil, t.TempDir())
	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Flush(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close of closed store: %v", err)
	}
}

func TestStoreOpenFailureReportsErrno(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "log000.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	s, _ := New(nil, dir)
	if err := s.Open("log000.txt"); err == nil {
		t.Fatal("expected error opening a directory for writing")
	}
	if s.ErrorCode() != int(syscall.EISDIR) {
		t.Fatalf("expected EISDIR, got %d", s.ErrorCode())
	}
}

func TestStoreHint(t *testing.T) {
	s, _ := New(nil, t.TempDir())
	if s.Hint(int(syscall.EIO)) == "" || s.Hint(int(syscall.ENOSPC)) == "" {
		t.Fatal("expected hints for EIO and ENOSPC")
	}
	if s.Hint(0) != "" {
		t.Fatal("unexpected hint for code 0")
	}
}

func TestStoreCapacity(t *testing.T) {
	s, _ := New(nil, t.TempDir())
	if s.Capacity() < 0 {
		t.Fatal("negative capacity")
	}
}
