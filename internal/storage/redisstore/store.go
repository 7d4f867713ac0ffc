// Package redisstore persists a log stream as a Redis string value.
//
// Each target name maps to the key <prefix><name>. Writes use APPEND and the
// accepted count is derived from the length APPEND returns, so a partial
// append surfaces as a short write. Flush optionally waits for the append-only
// file to be fsynced (WAITAOF, Redis 7.2+).
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCapacity is reported when neither Options.MaxBytes nor the server's
// maxmemory setting gives a bound.
const DefaultCapacity int64 = 512 << 20

// Error codes reported through ErrorCode.
const (
	CodeNone = iota
	CodeUnavailable
	CodeOutOfMemory
	CodeServer
	CodeShortWrite
	CodeNotDurable
)

var (
	// ErrClosed is returned by operations that need an open target.
	ErrClosed = errors.New("redisstore: target not open")
	// ErrExists is returned by Rename when the destination key exists.
	ErrExists = errors.New("redisstore: destination exists")
	// ErrNotDurable is returned by Flush when WAITAOF reports no local fsync.
	ErrNotDurable = errors.New("redisstore: append-only file not fsynced")
)

type Options struct {
	KeyPrefix string
	MaxBytes  int64
	WaitAOF   bool
	OpTimeout time.Duration
}

// Store is a logsink.Backend on top of a shared Client.
// Not safe for concurrent use; the owning sink serializes access.
type Store struct {
	log    *zap.Logger
	client *Client
	opts   Options

	name     string
	open     bool
	size     int64
	capacity int64

	lastErr  error
	lastCode int
}

func New(log *zap.Logger, client *Client, opts Options) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("invalid client: must be non-nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 3 * time.Second
	}
	return &Store{
		log:    log.Named("redisstore"),
		client: client,
		opts:   opts,
	}, nil
}

func (s *Store) key(name string) string { return s.opts.KeyPrefix + name }

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.OpTimeout)
}

// Open selects the key for name and reads its current length.
func (s *Store) Open(name string) error {
	if s.open {
		return fmt.Errorf("open %s: %s already open", name, s.name)
	}
	if name == "" {
		return fmt.Errorf("open: empty name")
	}
	ctx, cancel := s.ctx()
	defer cancel()

	n, err := s.client.StrLen(ctx, s.key(name)).Result()
	if err != nil {
		return s.fail(fmt.Errorf("strlen: %w", err))
	}
	s.name = name
	s.open = true
	s.size = n
	s.capacity = s.resolveCapacity(ctx)
	s.lastErr, s.lastCode = nil, CodeNone
	s.log.Debug("target opened", zap.String("key", s.key(name)), zap.Int64("size", n))
	return nil
}

// Truncate deletes the key for size 0, otherwise keeps its first size bytes.
func (s *Store) Truncate(size int64) error {
	if !s.open {
		return ErrClosed
	}
	ctx, cancel := s.ctx()
	defer cancel()
	key := s.key(s.name)

	if size == 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return s.fail(fmt.Errorf("del: %w", err))
		}
		s.size = 0
		return nil
	}

	head, err := s.client.GetRange(ctx, key, 0, size-1).Result()
	if err != nil {
		return s.fail(fmt.Errorf("getrange: %w", err))
	}
	if err := s.client.Set(ctx, key, head, 0).Err(); err != nil {
		return s.fail(fmt.Errorf("set: %w", err))
	}
	s.size = int64(len(head))
	return nil
}

// Write appends p to the key.
func (s *Store) Write(p []byte) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	newLen, err := s.client.Append(ctx, s.key(s.name), string(p)).Result()
	if err != nil {
		return 0, s.fail(fmt.Errorf("append: %w", err))
	}
	accepted := newLen - s.size
	s.size = newLen
	if accepted < 0 || accepted > int64(len(p)) {
		// The key changed under us; report nothing as accepted.
		s.lastCode = CodeShortWrite
		s.lastErr = fmt.Errorf("append: key length moved from %d to %d", newLen-accepted, newLen)
		return 0, s.lastErr
	}
	if accepted != int64(len(p)) {
		s.lastCode = CodeShortWrite
		s.lastErr = fmt.Errorf("append: accepted %d of %d bytes", accepted, len(p))
	}
	return int(accepted), nil
}

// Flush waits for the append-only file fsync when WaitAOF is set.
func (s *Store) Flush() error {
	if !s.open {
		return ErrClosed
	}
	if !s.opts.WaitAOF {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	timeoutMs := s.opts.OpTimeout.Milliseconds()
	res, err := s.client.Do(ctx, "WAITAOF", 1, 0, timeoutMs).Int64Slice()
	if err != nil {
		return s.fail(fmt.Errorf("waitaof: %w", err))
	}
	if len(res) == 0 || res[0] < 1 {
		s.lastCode = CodeNotDurable
		s.lastErr = ErrNotDurable
		return ErrNotDurable
	}
	return nil
}

// Rename moves the key. An existing destination is left untouched.
func (s *Store) Rename(name string) error {
	if !s.open {
		return ErrClosed
	}
	if name == "" {
		return fmt.Errorf("rename: empty name")
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if s.size == 0 {
		// RENAMENX fails on a missing source; an empty target has no key yet.
		n, err := s.client.Exists(ctx, s.key(name)).Result()
		if err != nil {
			return s.fail(fmt.Errorf("exists: %w", err))
		}
		if n > 0 {
			return fmt.Errorf("rename to %s: %w", name, ErrExists)
		}
		s.name = name
		return nil
	}

	ok, err := s.client.RenameNX(ctx, s.key(s.name), s.key(name)).Result()
	if err != nil {
		return s.fail(fmt.Errorf("renamenx: %w", err))
	}
	if !ok {
		return fmt.Errorf("rename to %s: %w", name, ErrExists)
	}
	s.name = name
	return nil
}

// Close releases the target. The shared client stays open.
func (s *Store) Close() error {
	s.open = false
	return nil
}

func (s *Store) Size() int64 { return s.size }

func (s *Store) Capacity() int64 {
	if s.capacity > 0 {
		return s.capacity
	}
	ctx, cancel := s.ctx()
	defer cancel()
	s.capacity = s.resolveCapacity(ctx)
	return s.capacity
}

func (s *Store) resolveCapacity(ctx context.Context) int64 {
	if s.opts.MaxBytes > 0 {
		return s.opts.MaxBytes
	}
	cfg, err := s.client.ConfigGet(ctx, "maxmemory").Result()
	if err != nil {
		s.log.Debug("config get maxmemory failed", zap.Error(err))
		return DefaultCapacity
	}
	if v, err := strconv.ParseInt(cfg["maxmemory"], 10, 64); err == nil && v > 0 {
		return v
	}
	return DefaultCapacity
}

func (s *Store) ErrorCode() int { return s.lastCode }

// ErrorData is the key length when the last failure happened.
func (s *Store) ErrorData() int {
	if s.lastCode == CodeNone {
		return 0
	}
	return int(s.size)
}

func (s *Store) Hint(code int) string {
	switch code {
	case CodeUnavailable:
		return fmt.Sprintf("Check that Redis is reachable at %s.", s.client.Options().Addr)
	case CodeOutOfMemory:
		return "Redis reached maxmemory; raise the limit or trim old log keys."
	case CodeShortWrite:
		return "The log key was modified by another client."
	case CodeNotDurable:
		return "Enable appendonly with appendfsync always or everysec."
	default:
		return ""
	}
}

func (s *Store) fail(err error) error {
	s.lastErr = err
	s.lastCode = classify(err)
	return err
}

func classify(err error) int {
	if err == nil {
		return CodeNone
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) {
		return CodeUnavailable
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		if strings.HasPrefix(rerr.Error(), "OOM") {
			return CodeOutOfMemory
		}
		return CodeServer
	}
	return CodeUnavailable
}
