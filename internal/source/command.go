package source

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// gracePeriod is how long a child gets between SIGTERM and SIGKILL.
const gracePeriod = 3 * time.Second

// Command supervises a child process and pumps its stdout and stderr into a
// writer. The child is restarted after a cooldown whenever it exits.
type Command struct {
	log             *zap.Logger
	argv            []string
	env             []string
	restartCooldown time.Duration

	mu       sync.Mutex
	restarts int
}

func NewCommand(log *zap.Logger, argv []string, restartCooldown time.Duration) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty command")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Command{
		log:             log.Named("source.command"),
		argv:            argv,
		env:             os.Environ(),
		restartCooldown: restartCooldown,
	}, nil
}

// Restarts returns how many times the child has been spawned after the first.
func (c *Command) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

// Run supervises the child until ctx ends. On cancellation the child's
// process group receives SIGTERM, then SIGKILL after a grace period.
func (c *Command) Run(ctx context.Context, w io.Writer) error {
	log := c.log.With(zap.Strings("argv", c.argv))
	log.Info("supervisor started")

	out := &lockedWriter{w: w}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for spawned := 0; ; spawned++ {
		select {
		case <-ctx.Done():
			log.Info("supervisor shutdown during restart cooldown", zap.String("reason", ctx.Err().Error()))
			return nil
		case <-timer.C:
		}

		if spawned > 0 {
			c.mu.Lock()
			c.restarts++
			c.mu.Unlock()
		}

		if stop := c.runOnce(ctx, log, out); stop {
			return nil
		}
		timer.Reset(c.restartCooldown)
	}
}

// runOnce spawns the child and waits for it. It reports true when ctx ended.
func (c *Command) runOnce(ctx context.Context, log *zap.Logger, out io.Writer) bool {
	cmd := exec.Command(c.argv[0], c.argv[1:]...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Env = c.env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Error("failed to create stdout pipe", zap.Error(err))
		return false
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		log.Error("failed to create stderr pipe", zap.Error(err))
		return false
	}
	if err := cmd.Start(); err != nil {
		log.Error("failed to spawn process", zap.Error(err), zap.String("command", c.argv[0]))
		return false
	}

	pid := cmd.Process.Pid
	log.Info("process started", zap.Int("pid", pid))

	var pumps sync.WaitGroup
	for name, r := range map[string]io.Reader{"stdout": stdout, "stderr": stderr} {
		name, r := name, r
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			if err := Pump(r, out); err != nil && !errors.Is(err, os.ErrClosed) {
				log.Warn("pipe reader exited abnormally", zap.String("pipe", name), zap.Int("pid", pid), zap.Error(err))
			}
		}()
	}

	// Pipes must be fully read before Wait closes them.
	doneCh := make(chan error, 1)
	go func() {
		pumps.Wait()
		doneCh <- cmd.Wait()
	}()

	select {
	case err := <-doneCh:
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			log.Warn("process exited abnormally", zap.Int("pid", pid), zap.Int("exit_code", exitErr.ExitCode()))
		case err != nil:
			log.Warn("process wait failed", zap.Int("pid", pid), zap.Error(err))
		default:
			log.Info("process exited normally", zap.Int("pid", pid))
		}
		return ctx.Err() != nil

	case <-ctx.Done():
		log.Info("shutdown requested, terminating process", zap.Int("pid", pid))
		terminate(cmd.Process, false)

		t := time.NewTimer(gracePeriod)
		defer t.Stop()
		select {
		case err := <-doneCh:
			log.Info("process terminated", zap.Int("pid", pid), zap.Error(err))
		case <-t.C:
			log.Warn("grace period exceeded, killing process", zap.Int("pid", pid), zap.Duration("timeout", gracePeriod))
			terminate(cmd.Process, true)
			err := <-doneCh
			log.Info("process killed", zap.Int("pid", pid), zap.Error(err))
		}
		return true
	}
}
