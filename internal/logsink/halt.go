package logsink

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edirooss/blocklog/pkg/fmtt"
	"go.uber.org/zap"
)

var (
	// ErrBufferFull is returned by Append/Write when the primary buffer has no
	// room. The byte is dropped; buffered data is untouched.
	ErrBufferFull = errors.New("log sink: primary buffer full")

	// ErrHalted is returned by every operation after a fatal storage fault.
	ErrHalted = errors.New("log sink: halted after storage fault")

	// ErrNotOpen is returned by Flush before Open succeeded or after Close.
	ErrNotOpen = errors.New("log sink: backend not open")
)

// Diagnostic describes a fatal storage fault.
type Diagnostic struct {
	Reason string // e.g. "Failed to write to log file"
	Err    error  // underlying error, may wrap a backend error
	Code   int    // backend error code (0 if unavailable)
	Data   int    // backend error data (0 if unavailable)
	Hint   string // operator hint for Code, if the backend offers one
}

func (d Diagnostic) Error() string {
	if d.Err == nil {
		return d.Reason
	}
	return d.Reason + ": " + d.Err.Error()
}

func (d Diagnostic) Unwrap() error { return d.Err }

// Halter receives fatal storage faults. The Sink calls Halt at most once.
//
// Production halters do not return: progress stops so a human or watchdog
// can intervene. If Halt does return, the Sink stays halted and answers every
// further call with ErrHalted.
type Halter interface {
	Halt(d Diagnostic)
}

// HaltFunc adapts a function to Halter.
type HaltFunc func(d Diagnostic)

func (f HaltFunc) Halt(d Diagnostic) { f(d) }

// BlockingHalter logs the diagnostic and blocks the calling goroutine forever.
type BlockingHalter struct {
	Log *zap.Logger
	Out io.Writer // error chain dump; defaults to os.Stderr
}

// Halt never returns.
func (h BlockingHalter) Halt(d Diagnostic) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	out := h.Out
	if out == nil {
		out = os.Stderr
	}

	fields := []zap.Field{zap.String("reason", d.Reason), zap.Error(d.Err)}
	if d.Code != 0 {
		fields = append(fields,
			zap.Int("error_code", d.Code),
			zap.String("error_data", fmt.Sprintf("0x%x", d.Data)),
		)
	}
	if d.Hint != "" {
		fields = append(fields, zap.String("hint", d.Hint))
	}
	log.Error("storage fault, halting", fields...)

	fmt.Fprintf(out, "Error: %s\n", d.Reason)
	if d.Hint != "" {
		fmt.Fprintf(out, "%s\n", d.Hint)
	}
	fmtt.FprintErrChainDebug(out, d.Err)

	select {}
}

// halt records the fault and hands it to the halter exactly once.
func (s *Sink) halt(reason string, err error) error {
	if s.halted {
		return ErrHalted
	}
	s.halted = true

	d := Diagnostic{Reason: reason, Err: err}
	if ec, ok := s.backend.(ErrorCoder); ok {
		d.Code = ec.ErrorCode()
		d.Data = ec.ErrorData()
	}
	if h, ok := s.backend.(Hinter); ok && d.Code != 0 {
		d.Hint = h.Hint(d.Code)
	}
	s.halter.Halt(d)

	return fmt.Errorf("%w: %w", ErrHalted, d)
}
