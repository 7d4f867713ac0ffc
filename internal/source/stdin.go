package source

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// Reader pumps an input stream (normally os.Stdin) into w.
type Reader struct {
	log *zap.Logger
	r   io.Reader
}

func NewReader(log *zap.Logger, r io.Reader) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{log: log.Named("source.reader"), r: r}
}

// Run returns on EOF, on a read or write error, or when ctx ends. A blocked
// read is abandoned on cancellation; the process is exiting anyway.
func (s *Reader) Run(ctx context.Context, w io.Writer) error {
	errc := make(chan error, 1)
	go func() { errc <- Pump(s.r, w) }()

	select {
	case err := <-errc:
		if err != nil && ctx.Err() == nil {
			s.log.Warn("input reader exited abnormally", zap.Error(err))
			return err
		}
		s.log.Info("input reached EOF")
		return nil
	case <-ctx.Done():
		return nil
	}
}
