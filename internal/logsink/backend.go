package logsink

// Backend is the block-oriented storage a Sink persists its stream to.
//
// Contract:
//   - Write appends p at the end of the open target and returns how many
//     bytes the medium accepted. A short count with a nil error is allowed;
//     the Sink treats any mismatch as a storage fault.
//   - Flush is a durability barrier for everything written so far.
//   - Truncate(0) discards stale contents; Open is followed by Truncate(0).
//   - Size reports bytes already committed to the target.
//   - Capacity reports the total addressable space of the medium.
//
// Implementations need not be safe for concurrent use.
type Backend interface {
	Open(name string) error
	Truncate(size int64) error
	Write(p []byte) (int, error)
	Flush() error
	Rename(name string) error
	Close() error
	Size() int64
	Capacity() int64
}

// ErrorCoder is implemented by backends that expose a medium-specific error
// code for the last failure (errno, driver status, ...). Zero means none.
type ErrorCoder interface {
	ErrorCode() int
	ErrorData() int
}

// Hinter is implemented by backends that can suggest an operator action for
// a given error code.
type Hinter interface {
	Hint(code int) string
}
