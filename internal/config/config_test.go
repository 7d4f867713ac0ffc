package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edirooss/blocklog/internal/logsink"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocklogd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendFile || cfg.Buffer.PrimarySize != logsink.DefaultPrimarySize {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
backend: Redis
name: boot.log
redis:
  address: 10.0.0.5:6379
  wait_aof: true
buffer:
  primary_size: 4096
  flush_mode: staged
flush_interval: 250ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendRedis || cfg.Redis.Addr != "10.0.0.5:6379" || !cfg.Redis.WaitAOF {
		t.Fatalf("redis section not applied: %+v", cfg)
	}
	if cfg.Redis.KeyPrefix != "blocklog:" {
		t.Fatalf("default key prefix lost: %q", cfg.Redis.KeyPrefix)
	}
	if cfg.FlushInterval != 250*time.Millisecond {
		t.Fatalf("unexpected interval %v", cfg.FlushInterval)
	}
	opts := cfg.SinkOptions()
	if opts.PrimarySize != 4096 || opts.ReadySize != logsink.DefaultReadySize || opts.Mode != logsink.ModeStaged {
		t.Fatalf("unexpected sink options %+v", opts)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":  "backend: tape\n",
		"sizes":    "buffer:\n  ready_size: 0\n",
		"mode":     "buffer:\n  flush_mode: lazy\n",
		"interval": "flush_interval: 0s\n",
		"tail":     "tail_size: -1\n",
		"name":     "name: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "buffer: [unterminated\n"))
	if err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "blocklogd.example.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.RestartCooldown != 5*time.Second || cfg.Redis.Timeout != 3*time.Second {
		t.Fatalf("unexpected durations %+v", cfg)
	}
}
