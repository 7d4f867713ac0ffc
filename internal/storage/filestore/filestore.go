// Package filestore persists a log stream to a file on a local filesystem.
//
// The durability barrier is fdatasync on Linux (File.Sync elsewhere) and the
// reported capacity is the size of the filesystem holding the log directory.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by operations that need an open file.
	ErrClosed = errors.New("filestore: file not open")
	// ErrInvalidName is returned for names that are empty or contain a path.
	ErrInvalidName = errors.New("filestore: invalid file name")
)

// Store writes to a single file inside dir.
// Not safe for concurrent use; the owning sink serializes access.
type Store struct {
	log  *zap.Logger
	dir  string
	perm os.FileMode

	f       *os.File
	name    string
	size    int64
	lastErr error
}

// New prepares a store rooted at dir, creating the directory if needed.
func New(log *zap.Logger, dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("invalid dir: must be non-empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{
		log:  log.Named("filestore"),
		dir:  dir,
		perm: 0o644,
	}, nil
}

// Open opens (creating if needed) dir/name for writing at its end.
func (s *Store) Open(name string) error {
	if s.f != nil {
		return fmt.Errorf("open %s: %s already open", name, s.name)
	}
	if err := validName(name); err != nil {
		return s.fail(err)
	}

	f, err := os.OpenFile(s.path(name), os.O_WRONLY|os.O_CREATE, s.perm)
	if err != nil {
		return s.fail(err)
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return s.fail(err)
	}

	s.f = f
	s.name = name
	s.size = end
	s.lastErr = nil
	s.log.Debug("file opened", zap.String("path", f.Name()), zap.Int64("size", end))
	return nil
}

// Truncate cuts the file to size bytes and positions writes at the new end.
func (s *Store) Truncate(size int64) error {
	if s.f == nil {
		return ErrClosed
	}
	if err := s.f.Truncate(size); err != nil {
		return s.fail(err)
	}
	if _, err := s.f.Seek(size, io.SeekStart); err != nil {
		return s.fail(err)
	}
	s.size = size
	return nil
}

// Write appends p and returns the bytes the filesystem accepted.
func (s *Store) Write(p []byte) (int, error) {
	if s.f == nil {
		return 0, ErrClosed
	}
	n, err := s.f.Write(p)
	s.size += int64(n)
	if err != nil {
		return n, s.fail(err)
	}
	return n, nil
}

// Flush forces written data to stable storage.
func (s *Store) Flush() error {
	if s.f == nil {
		return ErrClosed
	}
	if err := datasync(s.f); err != nil {
		return s.fail(err)
	}
	return nil
}

// Rename renames the open file within dir. The open handle stays valid.
func (s *Store) Rename(name string) error {
	if s.f == nil {
		return ErrClosed
	}
	if err := validName(name); err != nil {
		return err
	}
	if _, err := os.Stat(s.path(name)); err == nil {
		return fmt.Errorf("rename to %s: %w", name, os.ErrExist)
	}
	if err := os.Rename(s.path(s.name), s.path(name)); err != nil {
		return s.fail(err)
	}
	s.name = name
	return nil
}

// Close closes the file.
func (s *Store) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return s.fail(err)
	}
	return nil
}

// Size returns the file length as tracked by this store.
func (s *Store) Size() int64 { return s.size }

// Capacity returns the total size of the filesystem holding dir, or 0 when
// the platform cannot report it.
func (s *Store) Capacity() int64 {
	c, err := statfs(s.dir)
	if err != nil {
		s.log.Debug("statfs failed", zap.String("dir", s.dir), zap.Error(err))
		return 0
	}
	return c
}

// ErrorCode returns the errno of the last failure, or 0.
func (s *Store) ErrorCode() int {
	var errno syscall.Errno
	if errors.As(s.lastErr, &errno) {
		return int(errno)
	}
	return 0
}

// ErrorData returns the committed file length at the last failure, truncated
// to an int, so operators can see how far the write got.
func (s *Store) ErrorData() int {
	if s.lastErr == nil {
		return 0
	}
	return int(s.size)
}

// Hint suggests an operator action for an errno.
func (s *Store) Hint(code int) string {
	switch syscall.Errno(code) {
	case syscall.ENOSPC:
		return "Storage device is full; free space or replace the medium."
	case syscall.EIO:
		return "Try power cycling the storage device."
	case syscall.EROFS:
		return "Filesystem is mounted read-only."
	case syscall.EACCES, syscall.EPERM:
		return "Check permissions on the log directory."
	default:
		return ""
	}
}

// Path returns the absolute-or-relative path of the current file.
func (s *Store) Path() string { return s.path(s.name) }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) fail(err error) error {
	s.lastErr = err
	return err
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
