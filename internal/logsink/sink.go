// Package logsink implements a fixed-memory, double-buffered log sink that
// persists a byte stream to a slow block-oriented Backend.
//
// Producers append bytes into a primary ring buffer; the hot path is O(1),
// allocation-free and never blocks. A flush writes either the ready (staging)
// buffer or, when that is empty, the primary buffer, as at most two linear
// writes, and empties the buffer only after the backend accepted every byte.
//
// Storage faults are terminal: the sink hands a Diagnostic to its Halter and
// refuses further work.
//
// A Sink is not safe for concurrent use. Appends and flushes must come from one
// goroutine (or be serialized by the caller), and a flush must never run from
// inside an append.
package logsink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edirooss/blocklog/internal/ringbuf"
	"go.uber.org/zap"
)

const (
	DefaultPrimarySize = 1024
	DefaultReadySize   = 512

	bufferPrimary = "primary"
	bufferReady   = "ready"
)

// ErrAlreadyOpen is returned by Open when a target is already open.
var ErrAlreadyOpen = errors.New("log sink: backend already open")

// Mode selects how Flush uses the ready buffer.
type Mode int

const (
	// ModeDirect writes the ready buffer if it holds bytes, else the primary
	// buffer. Staging happens only through explicit PrepareBuffer calls.
	ModeDirect Mode = iota
	// ModeStaged stages before writing whenever the ready buffer is empty, so
	// every flush hands at most ReadySize bytes to the backend.
	ModeStaged
)

func (m Mode) String() string {
	switch m {
	case ModeStaged:
		return "staged"
	default:
		return "direct"
	}
}

// ParseMode converts "direct" or "staged" (case-insensitive) to a Mode.
func ParseMode(v string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "direct":
		return ModeDirect, nil
	case "staged":
		return ModeStaged, nil
	default:
		return ModeDirect, fmt.Errorf("unknown flush mode %q", v)
	}
}

// Options configures a Sink. Zero values select defaults.
type Options struct {
	PrimarySize   int    // primary buffer capacity in bytes (default 1024)
	ReadySize     int    // ready buffer capacity in bytes (default 512)
	Mode          Mode   // flush mode (default ModeDirect)
	NULTerminated bool   // staging stops at a zero byte
	Halter        Halter // fatal fault handler (default BlockingHalter)
}

// Sink owns two ring buffers and one backend.
type Sink struct {
	log     *zap.Logger
	backend Backend
	halter  Halter
	opts    Options

	primary *ringbuf.Ring[byte]
	ready   *ringbuf.Ring[byte]

	name   string
	open   bool
	halted bool

	dropped   int64
	flushes   int64
	committed int64
}

// New constructs a Sink writing to backend. Buffers are allocated here and
// never again. The backend is not opened; call Open.
func New(log *zap.Logger, backend Backend, opts Options) (*Sink, error) {
	if backend == nil {
		return nil, errors.New("nil backend")
	}
	if opts.PrimarySize < 0 || opts.ReadySize < 0 {
		return nil, fmt.Errorf("invalid buffer sizes: primary=%d ready=%d", opts.PrimarySize, opts.ReadySize)
	}
	if opts.PrimarySize == 0 {
		opts.PrimarySize = DefaultPrimarySize
	}
	if opts.ReadySize == 0 {
		opts.ReadySize = DefaultReadySize
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("logsink")
	if opts.Halter == nil {
		opts.Halter = BlockingHalter{Log: log}
	}

	return &Sink{
		log:     log,
		backend: backend,
		halter:  opts.Halter,
		opts:    opts,
		primary: ringbuf.New[byte](opts.PrimarySize),
		ready:   ringbuf.New[byte](opts.ReadySize),
	}, nil
}

// Append pushes one byte into the primary buffer.
// When the buffer is full the byte is dropped and ErrBufferFull returned;
// callers that prefer silent loss may ignore it.
//
// Complexity: O(1) time, no allocation
func (s *Sink) Append(c byte) error {
	if s.halted {
		return ErrHalted
	}
	if !s.primary.Put(c) {
		s.dropped++
		return ErrBufferFull
	}
	return nil
}

// Write appends p byte by byte. It stops at the first byte that is refused
// (ErrBufferFull or ErrHalted), counts that byte and the rest of p as
// dropped, and returns the number of bytes accepted.
func (s *Sink) Write(p []byte) (int, error) {
	for i, c := range p {
		if err := s.Append(c); err != nil {
			s.countDropped(err, len(p)-i)
			return i, err
		}
	}
	return len(p), nil
}

// WriteString is Write for strings without a conversion allocation.
func (s *Sink) WriteString(str string) (int, error) {
	for i := 0; i < len(str); i++ {
		if err := s.Append(str[i]); err != nil {
			s.countDropped(err, len(str)-i)
			return i, err
		}
	}
	return len(str), nil
}

// countDropped records n refused bytes. Append already counted the first one
// when it failed with ErrBufferFull.
func (s *Sink) countDropped(err error, n int) {
	if errors.Is(err, ErrBufferFull) {
		n--
	}
	s.dropped += int64(n)
}

// Flush performs one flush: the ready buffer if it holds bytes, else the
// primary buffer (staging first in ModeStaged). At most one buffer is written
// per call; use Drain to empty both.
func (s *Sink) Flush() error {
	if s.halted {
		return ErrHalted
	}
	if !s.open {
		return ErrNotOpen
	}
	return s.flushOnce()
}

func (s *Sink) flushOnce() error {
	if s.opts.Mode == ModeStaged {
		if s.ready.Empty() {
			s.PrepareBuffer()
		}
		return s.flushRing(s.ready, bufferReady)
	}

	if !s.ready.Empty() {
		return s.flushRing(s.ready, bufferReady)
	}
	return s.flushRing(s.primary, bufferPrimary)
}

// Drain flushes until both buffers are empty.
func (s *Sink) Drain() error {
	if s.halted {
		return ErrHalted
	}
	if !s.open {
		return ErrNotOpen
	}
	for !s.ready.Empty() || !s.primary.Empty() {
		if err := s.flushOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Open opens name on the backend, discards its previous contents, and flushes
// bytes buffered before the call. Failure to open or truncate is fatal.
func (s *Sink) Open(name string) error {
	if s.halted {
		return ErrHalted
	}
	if s.open {
		return ErrAlreadyOpen
	}

	if err := s.backend.Open(name); err != nil {
		return s.halt("Failed to open file", fmt.Errorf("open %q: %w", name, err))
	}
	if err := s.backend.Truncate(0); err != nil {
		return s.halt("Failed to truncate file", fmt.Errorf("truncate %q: %w", name, err))
	}

	s.open = true
	s.name = name
	s.log.Info("log target opened",
		zap.String("name", name),
		zap.Int64("capacity", s.backend.Capacity()),
		zap.Int("buffered", s.primary.Size()),
	)

	return s.Flush()
}

// Close drains both buffers and closes the backend. Failure is fatal.
// Closing a sink that is not open is a no-op.
func (s *Sink) Close() error {
	if s.halted {
		return ErrHalted
	}
	if !s.open {
		return nil
	}

	if err := s.Drain(); err != nil {
		return err
	}
	if err := s.backend.Close(); err != nil {
		return s.halt("Failed to close file", fmt.Errorf("close %q: %w", s.name, err))
	}

	s.open = false
	s.log.Info("log target closed",
		zap.String("name", s.name),
		zap.Int64("committed", s.committed),
		zap.Int64("dropped", s.dropped),
	)
	return nil
}

// Rename renames the open target. Errors are returned, not fatal: the current
// target remains valid.
func (s *Sink) Rename(name string) error {
	if s.halted {
		return ErrHalted
	}
	if !s.open {
		return ErrNotOpen
	}
	if err := s.backend.Rename(name); err != nil {
		return fmt.Errorf("rename %q -> %q: %w", s.name, name, err)
	}
	s.log.Info("log target renamed", zap.String("from", s.name), zap.String("to", name))
	s.name = name
	return nil
}

// Clear discards everything in the primary buffer. Staged bytes are kept.
func (s *Sink) Clear() {
	s.primary.Reset()
}

// Size returns the bytes already committed to the backend.
func (s *Sink) Size() int64 { return s.backend.Size() }

// Capacity returns the backend's total addressable space.
func (s *Sink) Capacity() int64 { return s.backend.Capacity() }

// Free returns how many bytes the primary buffer can still accept.
func (s *Sink) Free() int { return s.primary.Free() }

// Halted reports whether a fatal storage fault occurred.
func (s *Sink) Halted() bool { return s.halted }

// Name returns the current target name ("" before Open).
func (s *Sink) Name() string { return s.name }

// Stats is a point-in-time snapshot of the sink.
type Stats struct {
	Name            string `json:"name"`
	Open            bool   `json:"open"`
	Halted          bool   `json:"halted"`
	Mode            string `json:"mode"`
	Buffered        int    `json:"buffered"`
	PrimaryCapacity int    `json:"primary_capacity"`
	Staged          int    `json:"staged"`
	ReadyCapacity   int    `json:"ready_capacity"`
	Dropped         int64  `json:"dropped"`
	Flushes         int64  `json:"flushes"`
	Committed       int64  `json:"committed"`
	BackendSize     int64  `json:"backend_size"`
	BackendCapacity int64  `json:"backend_capacity"`
}

// Stats returns a snapshot of buffer occupancy and counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Name:            s.name,
		Open:            s.open,
		Halted:          s.halted,
		Mode:            s.opts.Mode.String(),
		Buffered:        s.primary.Size(),
		PrimaryCapacity: s.primary.Cap(),
		Staged:          s.ready.Size(),
		ReadyCapacity:   s.ready.Cap(),
		Dropped:         s.dropped,
		Flushes:         s.flushes,
		Committed:       s.committed,
		BackendSize:     s.backend.Size(),
		BackendCapacity: s.backend.Capacity(),
	}
}
