// Package source produces log bytes for the sink loop: the daemon's stdin or
// the output of a supervised child process, passed through byte for byte.
package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
)

// lineBufSize bounds a single Write from Pump. Longer lines are passed on in
// several pieces.
const lineBufSize = 64 * 1024

// Pump copies r to w unchanged until EOF. Complete lines that fit in
// lineBufSize reach w in a single Write call, so lines from concurrent pumps
// sharing a lockedWriter do not interleave.
func Pump(r io.Reader, w io.Writer) error {
	br := bufio.NewReaderSize(r, lineBufSize)
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			if _, werr := w.Write(chunk); werr != nil {
				return werr
			}
		}
		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

// ChanWriter sends a copy of every Write to a channel.
type ChanWriter struct {
	ctx context.Context
	ch  chan<- []byte
}

func NewChanWriter(ctx context.Context, ch chan<- []byte) *ChanWriter {
	return &ChanWriter{ctx: ctx, ch: ch}
}

// Write blocks until the receiver takes p or the context ends.
func (w *ChanWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case w.ch <- buf:
		return len(p), nil
	case <-w.ctx.Done():
		return 0, w.ctx.Err()
	}
}

// lockedWriter serializes writers sharing one destination.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
