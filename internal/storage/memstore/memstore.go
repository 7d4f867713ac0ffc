// Package memstore is an in-memory logsink.Backend.
//
// It records every write call, which makes it the reference backend for
// tests, and offers fault injection hooks for exercising the fatal paths.
// The daemon uses it as a dry-run backend.
package memstore

import (
	"errors"
	"sync"
)

// ErrClosed is returned by operations that need an open target.
var ErrClosed = errors.New("memstore: target not open")

// WriteFault decides how many bytes of the call-th write (0-based) are
// accepted, and which error is returned.
type WriteFault func(call int, p []byte) (int, error)

// Faults groups injectable failures. Nil fields mean success.
type Faults struct {
	Write    WriteFault
	Open     error
	Truncate error
	Flush    error
	Rename   error
	Close    error
	Code     int // reported by ErrorCode once any fault fired
}

// Store keeps the committed stream in a byte slice.
// Safe for concurrent use so tests can inspect it while an owner goroutine writes.
type Store struct {
	mu       sync.Mutex
	capacity int64
	faults   Faults

	name   string
	open   bool
	data   []byte
	writes []int
	syncs  int
	fired  bool
}

// New returns a store reporting the given capacity (bytes).
func New(capacity int64) *Store {
	return &Store{capacity: capacity}
}

// Inject replaces the configured faults.
func (s *Store) Inject(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
	s.fired = false
}

func (s *Store) Open(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults.Open; err != nil {
		s.fired = true
		return err
	}
	s.name = name
	s.open = true
	return nil
}

func (s *Store) Truncate(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrClosed
	}
	if err := s.faults.Truncate; err != nil {
		s.fired = true
		return err
	}
	if size < int64(len(s.data)) {
		s.data = s.data[:size]
	}
	return nil
}

func (s *Store) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, ErrClosed
	}

	call := len(s.writes)
	s.writes = append(s.writes, len(p))

	n, err := len(p), error(nil)
	if s.faults.Write != nil {
		n, err = s.faults.Write(call, p)
		if n < 0 {
			n = 0
		}
		if n > len(p) {
			n = len(p)
		}
		if err != nil || n != len(p) {
			s.fired = true
		}
	}
	s.data = append(s.data, p[:n]...)
	return n, err
}

func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrClosed
	}
	if err := s.faults.Flush; err != nil {
		s.fired = true
		return err
	}
	s.syncs++
	return nil
}

func (s *Store) Rename(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrClosed
	}
	if err := s.faults.Rename; err != nil {
		s.fired = true
		return err
	}
	s.name = name
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults.Close; err != nil {
		s.fired = true
		return err
	}
	s.open = false
	return nil
}

func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data))
}

func (s *Store) Capacity() int64 { return s.capacity }

// ErrorCode reports Faults.Code after an injected fault fired.
func (s *Store) ErrorCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fired {
		return 0
	}
	return s.faults.Code
}

func (s *Store) ErrorData() int { return 0 }

// Bytes returns a copy of the committed stream.
func (s *Store) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// WriteCalls returns the length of every write call, in order.
func (s *Store) WriteCalls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.writes))
	copy(out, s.writes)
	return out
}

// Syncs returns how many Flush calls succeeded.
func (s *Store) Syncs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs
}

// Name returns the current target name.
func (s *Store) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// IsOpen reports whether a target is open.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}
