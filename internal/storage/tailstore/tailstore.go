// Package tailstore decorates a logsink.Backend with a bounded in-memory copy
// of the most recently committed bytes, served by the HTTP tail endpoint.
package tailstore

import (
	"sync"

	"github.com/armon/circbuf"

	"github.com/edirooss/blocklog/internal/logsink"
)

// Store forwards every call to the wrapped backend and keeps the last limit
// accepted bytes. Tail is safe to call from any goroutine.
type Store struct {
	logsink.Backend

	mu  sync.Mutex
	buf *circbuf.Buffer
}

var (
	_ logsink.Backend    = (*Store)(nil)
	_ logsink.ErrorCoder = (*Store)(nil)
	_ logsink.Hinter     = (*Store)(nil)
)

// Wrap returns next decorated with a tail of limit bytes. A non-positive
// limit disables the tail but keeps forwarding.
func Wrap(next logsink.Backend, limit int) *Store {
	s := &Store{Backend: next}
	if limit > 0 {
		// NewBuffer only rejects sizes <= 0.
		s.buf, _ = circbuf.NewBuffer(int64(limit))
	}
	return s
}

// Write forwards p and records only the bytes the backend accepted.
func (s *Store) Write(p []byte) (int, error) {
	n, err := s.Backend.Write(p)
	if n > 0 && s.buf != nil {
		s.mu.Lock()
		s.buf.Write(p[:n])
		s.mu.Unlock()
	}
	return n, err
}

// Truncate forwards and, on success, forgets the recorded tail when the
// target is emptied.
func (s *Store) Truncate(size int64) error {
	if err := s.Backend.Truncate(size); err != nil {
		return err
	}
	if size == 0 && s.buf != nil {
		s.mu.Lock()
		s.buf.Reset()
		s.mu.Unlock()
	}
	return nil
}

// Tail returns a copy of the recorded bytes, oldest first.
func (s *Store) Tail() []byte {
	if s.buf == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buf.Bytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Total returns how many bytes passed through since the last reset.
func (s *Store) Total() int64 {
	if s.buf == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.TotalWritten()
}

func (s *Store) ErrorCode() int {
	if ec, ok := s.Backend.(logsink.ErrorCoder); ok {
		return ec.ErrorCode()
	}
	return 0
}

func (s *Store) ErrorData() int {
	if ec, ok := s.Backend.(logsink.ErrorCoder); ok {
		return ec.ErrorData()
	}
	return 0
}

func (s *Store) Hint(code int) string {
	if h, ok := s.Backend.(logsink.Hinter); ok {
		return h.Hint(code)
	}
	return ""
}
