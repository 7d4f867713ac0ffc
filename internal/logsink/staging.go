package logsink

import "go.uber.org/zap"

// PrepareBuffer moves the oldest pending bytes from the primary buffer into
// the ready buffer, up to the ready buffer's free space. Returns the number of
// bytes moved.
//
// Bytes keep their order: the ready buffer only ever receives the primary
// buffer's oldest bytes, and the ready buffer is always flushed first.
//
// With Options.NULTerminated a zero byte ends the transfer and is discarded.
// Otherwise the transfer is length-tracked and zero bytes are ordinary data.
//
// Complexity: O(k) where k = bytes moved; no allocation
func (s *Sink) PrepareBuffer() int {
	if s.halted {
		return 0
	}

	budget := s.ready.Free()
	if n := s.primary.Size(); n < budget {
		budget = n
	}

	moved := 0
	for ; budget > 0; budget-- {
		c, ok := s.primary.Get()
		if !ok {
			break
		}
		if s.opts.NULTerminated && c == 0 {
			break
		}
		s.ready.Put(c)
		moved++
	}

	if moved > 0 {
		s.log.Debug("staged bytes", zap.Int("bytes", moved), zap.Int("ready", s.ready.Size()))
	}
	return moved
}
