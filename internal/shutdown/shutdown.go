// Package shutdown turns SIGINT and SIGTERM into an orderly teardown.
//
// A Coordinator holds hooks registered at startup (stop accepting HTTP
// requests, then stop every sandbox). Run serves until the context is
// cancelled or the serve function returns, then runs every hook in
// registration order with a bounded timeout. Hook errors are logged and
// joined but never stop later hooks.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
)

// DefaultTimeout bounds how long all hooks together may take.
const DefaultTimeout = 30 * time.Second

// Signals are the signals that trigger shutdown.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Hook is one teardown step.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Coordinator runs hooks once, in order.
type Coordinator struct {
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook
	once  sync.Once
	err   error
}

// New creates a Coordinator whose hooks share timeout. A zero timeout
// means DefaultTimeout.
func New(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{timeout: timeout}
}

// Register appends a hook.
func (c *Coordinator) Register(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, Hook{Name: name, Fn: fn})
}

// Notify returns a context cancelled on SIGINT or SIGTERM.
func Notify(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, Signals...)
}

// Shutdown runs every hook in registration order. Later calls return the
// first call's result without running the hooks again.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.mu.Lock()
		hooks := append([]Hook(nil), c.hooks...)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		var errs []error
		for _, h := range hooks {
			logging.Debug("running shutdown hook", "hook", h.Name)
			if err := h.Fn(ctx); err != nil {
				logging.Warn("shutdown hook failed", "hook", h.Name, "error", err)
				errs = append(errs, err)
			}
		}
		c.err = errors.Join(errs...)
	})
	return c.err
}

// Run calls serve and waits for it to return or for ctx to be cancelled,
// then runs the hooks. The error from serve wins over hook errors. A
// cancelled ctx is a clean exit.
func (c *Coordinator) Run(ctx context.Context, serve func(ctx context.Context) error) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- serve(serveCtx) }()

	var serveErr error
	select {
	case serveErr = <-done:
	case <-ctx.Done():
		logging.Info("shutting down")
	}

	hookErr := c.Shutdown(ctx)
	cancel()
	if serveErr != nil {
		return serveErr
	}
	return hookErr
}
