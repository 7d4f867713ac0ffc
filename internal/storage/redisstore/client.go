package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client is the Redis connection shared by every Store of a process.
type Client struct {
	*redis.Client
	log *zap.Logger
}

type ClientOptions struct {
	Addr    string
	DB      int
	Timeout time.Duration // read/write timeout; dial gets the larger of this and 5s
}

// NewClient builds a client without contacting the server. Use Probe to
// check reachability.
func NewClient(log *zap.Logger, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Client{
		Client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			DB:           opts.DB,
			DialTimeout:  max(opts.Timeout, 5*time.Second),
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
			PoolSize:     2, // one sink writer plus a spare for probes
			MaxRetries:   3,
		}),
		log: log.Named("redis").With(zap.String("addr", opts.Addr), zap.Int("db", opts.DB)),
	}
}

// Health is what Probe learned about the server.
type Health struct {
	RTT        time.Duration
	AOFEnabled bool
}

// Probe pings the server and reads its persistence settings.
func (c *Client) Probe(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var h Health
	start := time.Now()
	if err := c.Ping(ctx).Err(); err != nil {
		return h, fmt.Errorf("ping %s: %w", c.Options().Addr, err)
	}
	h.RTT = time.Since(start)

	info, err := c.Info(ctx, "persistence").Result()
	if err != nil {
		c.log.Debug("info persistence failed", zap.Error(err))
		return h, nil
	}
	h.AOFEnabled = strings.Contains(info, "aof_enabled:1")
	return h, nil
}
