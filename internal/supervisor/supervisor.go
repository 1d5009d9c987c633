package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/system"
	"github.com/kballard/go-shellquote"
)

// Spec describes one process to spawn.
type Spec struct {
	Argv    []string
	Dir     string
	Port    int
	Env     map[string]string
	LogPath string

	// OnExit runs once the process has been reaped, whatever the cause.
	OnExit func(pid int, err error)
}

// Supervisor manages dev-server processes.
type Supervisor struct {
	logsDir      string
	signaler     system.Signaler
	grace        time.Duration
	nodeEnv      string
	pollInterval time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithGracePeriod sets how long Terminate waits between SIGTERM and SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// WithSignaler replaces the signal delivery mechanism.
func WithSignaler(sig system.Signaler) Option {
	return func(s *Supervisor) { s.signaler = sig }
}

// WithNodeEnv sets the NODE_ENV value injected into every process.
func WithNodeEnv(env string) Option {
	return func(s *Supervisor) { s.nodeEnv = env }
}

// New creates a Supervisor that writes logs under logsDir.
func New(logsDir string, opts ...Option) *Supervisor {
	s := &Supervisor{
		logsDir:      logsDir,
		signaler:     system.DefaultSignaler(),
		grace:        2 * time.Second,
		nodeEnv:      "development",
		pollInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogPath returns the log file for owner/branch.
func (s *Supervisor) LogPath(owner, branch string) string {
	return filepath.Join(s.logsDir, owner, branch+".log")
}

// Spawn starts spec in a new process group and returns its pid.
// The process is not tied to ctx: it outlives the caller until terminated.
func (s *Supervisor) Spawn(ctx context.Context, spec Spec) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, errors.SpawnFailed("", fmt.Errorf("empty command"))
	}
	command := shellquote.Join(spec.Argv...)
	if err := ctx.Err(); err != nil {
		return 0, errors.SpawnFailed(command, err)
	}

	logFile, err := openLog(spec.LogPath)
	if err != nil {
		return 0, errors.SpawnFailed(command, err)
	}
	fmt.Fprintf(logFile, "=== %s start %s (port %d, dir %s)\n",
		time.Now().Format(time.RFC3339), command, spec.Port, spec.Dir)

	env := make(map[string]string, len(spec.Env)+2)
	for k, v := range spec.Env {
		env[k] = v
	}
	env["PORT"] = strconv.Itoa(spec.Port)
	env["NODE_ENV"] = s.nodeEnv

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = system.SafeEnviron(env)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return 0, errors.SpawnFailed(command, err)
	}
	pid := cmd.Process.Pid
	logging.Debug("spawned dev server", "pid", pid, "command", command, "port", spec.Port)

	go func() {
		waitErr := cmd.Wait()
		fmt.Fprintf(logFile, "=== %s exit pid %d: %v\n", time.Now().Format(time.RFC3339), pid, exitDescription(waitErr))
		logFile.Close()
		if spec.OnExit != nil {
			spec.OnExit(pid, waitErr)
		}
	}()

	return pid, nil
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func exitDescription(err error) string {
	if err == nil {
		return "exited 0"
	}
	return err.Error()
}

// IsAlive reports whether pid is a live process.
func (s *Supervisor) IsAlive(pid int) bool {
	return system.Alive(s.signaler, pid)
}

// Terminate stops pid and its process group: SIGTERM, then SIGKILL once the
// grace period has passed. A pid that is already dead is a no-op.
func (s *Supervisor) Terminate(ctx context.Context, pid int) error {
	if !s.IsAlive(pid) {
		return nil
	}

	s.signal(pid, syscall.SIGTERM)
	if s.waitDead(ctx, pid, s.grace) {
		return nil
	}

	logging.Debug("process ignored SIGTERM, killing", "pid", pid, "grace", s.grace)
	s.signal(pid, syscall.SIGKILL)
	if s.waitDead(ctx, pid, time.Second) {
		return nil
	}
	return fmt.Errorf("process %d still alive after SIGKILL", pid)
}

// signal addresses the process group and falls back to the bare pid for
// processes that are not group leaders.
func (s *Supervisor) signal(pid int, sig syscall.Signal) {
	if err := s.signaler.Signal(-pid, sig); err == nil {
		return
	}
	if err := s.signaler.Signal(pid, sig); err != nil {
		logging.Debug("signal failed", "pid", pid, "signal", sig, "error", err)
	}
}

func (s *Supervisor) waitDead(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !s.IsAlive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return !s.IsAlive(pid)
		case <-time.After(s.pollInterval):
		}
	}
}
