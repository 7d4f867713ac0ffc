package logsink

import (
	"fmt"

	"github.com/edirooss/blocklog/internal/ringbuf"
	"go.uber.org/zap"
)

// linearSpans returns the live region of r as at most two contiguous slices
// of its storage, oldest first. Concatenated they reproduce the ring's
// logical contents from tail to the newest element.
//
// The region wraps when tail > head, or when the ring is full with a nonzero
// tail (head == tail in that case and the live region is [tail,N) + [0,head)).
// A wrapped region with head == 0 yields no second span.
//
// Complexity: O(1), no copying
func linearSpans(r *ringbuf.Ring[byte]) (first, second []byte) {
	if r.Empty() {
		return nil, nil
	}

	head, tail := r.Head(), r.Tail()
	buf := r.Storage()

	if tail > head || (tail > 0 && r.Full()) {
		first = buf[tail:r.Cap()]
		if head > 0 {
			second = buf[:head]
		}
		return first, second
	}

	return buf[tail : tail+r.Size()], nil
}

// flushRing writes the live region of r to the backend in at most two linear
// writes, verifies the accepted count, issues the durability barrier, and only
// then resets r.
//
// Any mismatch or error is fatal: r keeps its contents and the sink halts.
// Nothing is retried, because the ring cursors only move after a verified
// full write.
func (s *Sink) flushRing(r *ringbuf.Ring[byte], which string) error {
	size := r.Size()
	if size == 0 {
		return nil
	}

	first, second := linearSpans(r)

	written, err := s.backend.Write(first)
	if err == nil && written == len(first) && len(second) > 0 {
		var n int
		n, err = s.backend.Write(second)
		written += n
	}

	if err != nil || written != size {
		s.log.Error("linear write mismatch",
			zap.String("buffer", which),
			zap.Int("expected", size),
			zap.Int("written", written),
			zap.Int("head", r.Head()),
			zap.Int("tail", r.Tail()),
			zap.Error(err),
		)
		if err == nil {
			err = fmt.Errorf("short write: %d of %d bytes", written, size)
		}
		return s.halt(writeFailureReason(which), fmt.Errorf("write %s buffer: %w", which, err))
	}

	if err := s.backend.Flush(); err != nil {
		return s.halt(writeFailureReason(which), fmt.Errorf("sync %s buffer: %w", which, err))
	}

	r.Reset()

	s.flushes++
	s.committed += int64(size)
	s.log.Debug("buffer flushed",
		zap.String("buffer", which),
		zap.Int("bytes", size),
		zap.Bool("wrapped", len(second) > 0),
	)
	return nil
}

func writeFailureReason(which string) string {
	if which == bufferReady {
		return "Failed to write ready buffer to log file"
	}
	return "Failed to write to log file"
}
