package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/blocklog/internal/logsink"
)

// ErrLoopStopped is returned by Do once Run has returned.
var ErrLoopStopped = errors.New("sink loop stopped")

// SinkLoop is the single owner of a logsink.Sink.
//
// Producer chunks, periodic flushes and control requests are all executed on
// the goroutine running Run, one at a time, so the sink itself needs no
// locking. A fatal storage fault blocks that goroutine inside the sink's
// halter; control callers then fail on their own context deadline.
type SinkLoop struct {
	log      *zap.Logger
	sink     *logsink.Sink
	interval time.Duration
	input    <-chan []byte

	reqs chan request
	done chan struct{}
}

type request struct {
	fn   func(*logsink.Sink) error
	resp chan error
}

// NewSinkLoop returns a loop feeding input into sink and flushing every
// interval. A nil input channel is allowed (control requests only).
func NewSinkLoop(log *zap.Logger, sink *logsink.Sink, interval time.Duration, input <-chan []byte) *SinkLoop {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &SinkLoop{
		log:      log.Named("sinkloop"),
		sink:     sink,
		interval: interval,
		input:    input,
		reqs:     make(chan request),
		done:     make(chan struct{}),
	}
}

// Run executes until ctx is cancelled, then writes whatever input is already
// queued, closes the sink (draining both buffers) and returns the close error.
func (l *SinkLoop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	input := l.input
	for {
		select {
		case <-ctx.Done():
			l.drainInput(input)
			l.log.Info("shutting down, closing sink", zap.String("reason", ctx.Err().Error()))
			return l.sink.Close()

		case <-ticker.C:
			err := l.sink.Flush()
			if err != nil && !errors.Is(err, logsink.ErrNotOpen) && !errors.Is(err, logsink.ErrHalted) {
				l.log.Warn("periodic flush failed", zap.Error(err))
			}

		case chunk, ok := <-input:
			if !ok {
				l.log.Info("input closed")
				input = nil
				continue
			}
			l.write(chunk)

		case req := <-l.reqs:
			req.resp <- req.fn(l.sink)
		}
	}
}

// write appends chunk, flushing whenever the primary buffer fills. Bytes that
// still do not fit (sink halted or not open) are dropped and counted.
func (l *SinkLoop) write(chunk []byte) {
	if l.sink.Halted() {
		l.sink.Write(chunk) // refused; counted as dropped
		return
	}
	for len(chunk) > 0 {
		if l.sink.Free() == 0 {
			if err := l.sink.Flush(); err != nil {
				l.sink.Write(chunk)
				return
			}
			if l.sink.Free() == 0 {
				l.sink.Write(chunk)
				return
			}
		}
		n := min(l.sink.Free(), len(chunk))
		l.sink.Write(chunk[:n])
		chunk = chunk[n:]
	}
}

func (l *SinkLoop) drainInput(input <-chan []byte) {
	if input == nil {
		return
	}
	for {
		select {
		case chunk, ok := <-input:
			if !ok {
				return
			}
			l.write(chunk)
		default:
			return
		}
	}
}

// Do runs fn on the loop goroutine and returns its error.
func (l *SinkLoop) Do(ctx context.Context, fn func(*logsink.Sink) error) error {
	req := request{fn: fn, resp: make(chan error, 1)}
	select {
	case l.reqs <- req:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot taken on the loop goroutine.
func (l *SinkLoop) Stats(ctx context.Context) (logsink.Stats, error) {
	var st logsink.Stats
	err := l.Do(ctx, func(s *logsink.Sink) error {
		st = s.Stats()
		return nil
	})
	return st, err
}
