// Package config loads the blocklogd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edirooss/blocklog/internal/logsink"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Backend kinds.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	HTTPAddr      string        `yaml:"http_address"`
	Backend       string        `yaml:"backend"`
	Name          string        `yaml:"name"`
	File          FileConfig    `yaml:"file"`
	Redis         RedisConfig   `yaml:"redis"`
	Buffer        BufferConfig  `yaml:"buffer"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	TailSize      int           `yaml:"tail_size"`
	UptimePrefix  bool          `yaml:"uptime_prefix"`
	Source        SourceConfig  `yaml:"source"`
}

type FileConfig struct {
	Dir string `yaml:"dir"`
}

type RedisConfig struct {
	Addr      string        `yaml:"address"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	MaxBytes  int64         `yaml:"max_bytes"`
	WaitAOF   bool          `yaml:"wait_aof"`
	Timeout   time.Duration `yaml:"timeout"`
}

type BufferConfig struct {
	PrimarySize   int    `yaml:"primary_size"`
	ReadySize     int    `yaml:"ready_size"`
	FlushMode     string `yaml:"flush_mode"`
	NULTerminated bool   `yaml:"nul_terminated"`
}

// SourceConfig controls the child-process producer. An empty Command means
// the daemon reads its own stdin.
type SourceConfig struct {
	Command         []string      `yaml:"command"`
	RestartCooldown time.Duration `yaml:"restart_cooldown"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		HTTPAddr: "127.0.0.1:8090",
		Backend:  BackendFile,
		Name:     "log000.txt",
		File:     FileConfig{Dir: "."},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "blocklog:",
			Timeout:   3 * time.Second,
		},
		Buffer: BufferConfig{
			PrimarySize: logsink.DefaultPrimarySize,
			ReadySize:   logsink.DefaultReadySize,
			FlushMode:   logsink.ModeDirect.String(),
		},
		FlushInterval: time.Second,
		TailSize:      4096,
		Source:        SourceConfig{RestartCooldown: 5 * time.Second},
	}
}

// Load reads path and overlays it on Default. A missing file yields the
// defaults; any other read or decode error is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and normalizes enumerations.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendFile:
		if c.File.Dir == "" {
			return fmt.Errorf("%w: file.dir must be non-empty", ErrInvalid)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.address must be non-empty", ErrInvalid)
		}
		if c.Redis.MaxBytes < 0 {
			return fmt.Errorf("%w: redis.max_bytes must be >= 0", ErrInvalid)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: backend %q (want file, redis or memory)", ErrInvalid, c.Backend)
	}

	if c.Name == "" {
		return fmt.Errorf("%w: name must be non-empty", ErrInvalid)
	}
	if c.Buffer.PrimarySize <= 0 || c.Buffer.ReadySize <= 0 {
		return fmt.Errorf("%w: buffer sizes must be > 0", ErrInvalid)
	}
	if _, err := logsink.ParseMode(c.Buffer.FlushMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("%w: flush_interval must be > 0", ErrInvalid)
	}
	if c.TailSize < 0 {
		return fmt.Errorf("%w: tail_size must be >= 0", ErrInvalid)
	}
	if c.Source.RestartCooldown < 0 {
		return fmt.Errorf("%w: source.restart_cooldown must be >= 0", ErrInvalid)
	}
	return nil
}

// SinkOptions maps the buffer section onto logsink.Options.
func (c *Config) SinkOptions() logsink.Options {
	mode, _ := logsink.ParseMode(c.Buffer.FlushMode)
	return logsink.Options{
		PrimarySize:   c.Buffer.PrimarySize,
		ReadySize:     c.Buffer.ReadySize,
		Mode:          mode,
		NULTerminated: c.Buffer.NULTerminated,
	}
}
