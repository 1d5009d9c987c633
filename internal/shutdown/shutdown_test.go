package shutdown

import (
	"context"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func TestShutdown_RunsHooksInOrder(t *testing.T) {
	c := New(time.Second)
	var order []string
	for _, name := range []string{"http", "pool", "inventory"} {
		c.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []string{"http", "pool", "inventory"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestShutdown_ContinuesAfterError(t *testing.T) {
	c := New(time.Second)
	ran := false
	c.Register("fails", func(ctx context.Context) error { return fmt.Errorf("boom") })
	c.Register("after", func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := c.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected the hook error to be returned")
	}
	if !ran {
		t.Error("later hooks must still run")
	}
}

func TestShutdown_Once(t *testing.T) {
	c := New(time.Second)
	calls := 0
	c.Register("count", func(ctx context.Context) error {
		calls++
		return nil
	})

	_ = c.Shutdown(context.Background())
	_ = c.Shutdown(context.Background())
	if calls != 1 {
		t.Errorf("hook ran %d times, want 1", calls)
	}
}

func TestShutdown_HooksGetLiveContext(t *testing.T) {
	c := New(time.Second)
	var hookErr error
	c.Register("check", func(ctx context.Context) error {
		hookErr = ctx.Err()
		if _, ok := ctx.Deadline(); !ok {
			return fmt.Errorf("hook context has no deadline")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if hookErr != nil {
		t.Errorf("hook context already done: %v", hookErr)
	}
}

func TestRun_CancelTriggersHooks(t *testing.T) {
	c := New(time.Second)
	stopped := make(chan struct{})
	c.Register("stop", func(ctx context.Context) error {
		close(stopped)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Run(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-stopped:
	default:
		t.Error("shutdown hook did not run")
	}
}

func TestRun_ServeErrorWins(t *testing.T) {
	c := New(time.Second)
	ran := false
	c.Register("stop", func(ctx context.Context) error {
		ran = true
		return fmt.Errorf("hook failed")
	})

	err := c.Run(context.Background(), func(ctx context.Context) error {
		return fmt.Errorf("listen: address in use")
	})
	if err == nil || err.Error() != "listen: address in use" {
		t.Errorf("Run error = %v, want the serve error", err)
	}
	if !ran {
		t.Error("hooks must run when serve fails")
	}
}

func TestNotify_Signal(t *testing.T) {
	ctx, stop := Notify(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}
