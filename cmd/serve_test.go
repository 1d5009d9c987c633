package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/server"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/shutdown"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/supervisor"
)

func TestRegisterShutdown_GraceSurvivesInFlightStart(t *testing.T) {
	const grace = 300 * time.Millisecond

	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Pool.WorkspaceRoot = t.TempDir()
	cfg.Pool.GracePeriod = config.Duration{Duration: grace}
	cfg.Pool.ReadinessInterval = config.Duration{Duration: 20 * time.Millisecond}
	cfg.Pool.ReadinessAttempts = 1000
	for _, branch := range []string{"stubborn", "slow"} {
		if err := os.MkdirAll(filepath.Join(cfg.Pool.WorkspaceRoot, "o", branch), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	var ready atomic.Bool
	ready.Store(true)
	detect := func(dir string) (supervisor.Profile, error) {
		argv := []string{"sleep", "30"}
		if filepath.Base(dir) == "stubborn" {
			argv = []string{"sh", "-c", `trap "" TERM; while :; do sleep 0.05; done`}
		}
		return supervisor.Profile{Kind: supervisor.ProfileRoot, Dir: dir, Argv: argv, Command: argv[0]}, nil
	}
	probe := func(int) health.Probe {
		return func(context.Context) bool { return ready.Load() }
	}

	a, err := app.New(cfg, app.WithPoolOptions(pool.WithProfileDetector(detect), pool.WithProbe(probe)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Close() })

	stubborn := pool.Key{OwnerID: "o", BranchID: "stubborn"}
	res := a.Pool.Start(context.Background(), stubborn)
	if res.Status != pool.StatusRunning {
		t.Fatalf("Start(stubborn) = %+v", res)
	}
	srv, _ := a.Pool.Query(stubborn)

	// The second start never turns ready, so its request stays in flight.
	ready.Store(false)
	hs := httptest.NewServer(server.New("", a.Pool).Handler())
	t.Cleanup(hs.Close)

	answered := make(chan int, 1)
	go func() {
		resp, err := http.Post(hs.URL+"/api/sandboxes/o/slow", "application/json", nil)
		if err != nil {
			answered <- 0
			return
		}
		resp.Body.Close()
		answered <- resp.StatusCode
	}()
	waitUntil(t, func() bool {
		_, ok := a.Pool.Query(pool.Key{OwnerID: "o", BranchID: "slow"})
		return ok
	})

	coord := shutdown.New(5 * time.Second)
	registerShutdown(coord, a, hs.Config.Shutdown, nil, false, 5*time.Second)

	began := time.Now()
	if err := coord.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	elapsed := time.Since(began)

	if elapsed < grace {
		t.Errorf("shutdown took %v, the stubborn sandbox was not given its %v grace", elapsed, grace)
	}
	if elapsed > 3*time.Second {
		t.Errorf("shutdown took %v, the in-flight start held the drain", elapsed)
	}
	if err := syscall.Kill(srv.PID, 0); err == nil {
		t.Errorf("pid %d still alive after shutdown", srv.PID)
	}
	if n := len(a.Registry.Load().Servers); n != 0 {
		t.Errorf("registry holds %d sandboxes after shutdown, want 0", n)
	}

	select {
	case code := <-answered:
		if code == http.StatusOK || code == 0 {
			t.Errorf("in-flight start answered %d, want a readiness failure", code)
		}
	case <-time.After(2 * time.Second):
		t.Error("in-flight start never answered")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
