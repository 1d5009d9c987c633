package pool

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/supervisor"
)

// fakeProcs stands in for the supervisor: pids are counters and liveness
// is a map.
type fakeProcs struct {
	mu         sync.Mutex
	nextPID    int
	alive      map[int]bool
	specs      map[int]supervisor.Spec
	spawned    []supervisor.Spec
	terminated []int
	spawnErr   error

	// onTerminate runs after a live pid is terminated.
	onTerminate func(pid int)
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{
		nextPID: 1000,
		alive:   make(map[int]bool),
		specs:   make(map[int]supervisor.Spec),
	}
}

func (f *fakeProcs) Spawn(ctx context.Context, spec supervisor.Spec) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return 0, f.spawnErr
	}
	f.nextPID++
	pid := f.nextPID
	f.alive[pid] = true
	f.specs[pid] = spec
	f.spawned = append(f.spawned, spec)
	return pid, nil
}

func (f *fakeProcs) IsAlive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

// Terminate kills pid and fires its exit callback asynchronously, like a
// reaped child.
func (f *fakeProcs) Terminate(ctx context.Context, pid int) error {
	f.mu.Lock()
	wasAlive := f.alive[pid]
	delete(f.alive, pid)
	if wasAlive {
		f.terminated = append(f.terminated, pid)
	}
	spec := f.specs[pid]
	hook := f.onTerminate
	f.mu.Unlock()

	if wasAlive && spec.OnExit != nil {
		go spec.OnExit(pid, fmt.Errorf("signal: terminated"))
	}
	if wasAlive && hook != nil {
		hook(pid)
	}
	return nil
}

func (f *fakeProcs) LogPath(owner, branch string) string {
	return filepath.Join("/logs", owner, branch+".log")
}

// crash kills pid out of band. With notify the exit callback runs
// synchronously; without it the death is only visible to liveness checks.
func (f *fakeProcs) crash(pid int, notify bool) {
	f.mu.Lock()
	delete(f.alive, pid)
	spec := f.specs[pid]
	f.mu.Unlock()
	if notify && spec.OnExit != nil {
		spec.OnExit(pid, fmt.Errorf("exit status 1"))
	}
}

func (f *fakeProcs) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawned)
}

func (f *fakeProcs) wasTerminated(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.terminated {
		if p == pid {
			return true
		}
	}
	return false
}

// fakeClock advances by one second on every read so access order is strict.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type testPool struct {
	mgr   *Manager
	procs *fakeProcs
	reg   *registry.Registry
	audit *audit.Logger

	mu    sync.Mutex
	ready func(port int) bool
}

func (tp *testPool) setReady(fn func(port int) bool) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.ready = fn
}

func newTestPool(t *testing.T, mutate func(*config.PoolConfig)) *testPool {
	t.Helper()

	cfg := config.Default().Pool
	cfg.WorkspaceRoot = t.TempDir()
	cfg.ReadinessInterval = config.Duration{Duration: time.Millisecond}
	cfg.ReadinessAttempts = 5
	if mutate != nil {
		mutate(&cfg)
	}

	tp := &testPool{
		procs: newFakeProcs(),
		reg:   registry.New(filepath.Join(t.TempDir(), "servers.json"), nil),
		audit: audit.NewLogger(t.TempDir()),
		ready: func(int) bool { return true },
	}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	tp.mgr = New(tp.reg, tp.procs,
		WithConfig(cfg),
		WithAudit(tp.audit),
		WithClock(clock.now),
		WithProfileDetector(func(dir string) (supervisor.Profile, error) {
			return supervisor.Profile{
				Kind:    supervisor.ProfileRoot,
				Dir:     dir,
				Argv:    []string{"npm", "run", "dev"},
				Command: "npm run dev",
			}, nil
		}),
		WithProbe(func(port int) health.Probe {
			return func(context.Context) bool {
				tp.mu.Lock()
				ready := tp.ready
				tp.mu.Unlock()
				return ready(port)
			}
		}),
	)
	return tp
}

func key(owner, branch string) Key {
	return Key{OwnerID: owner, BranchID: branch}
}

func mustStart(t *testing.T, tp *testPool, k Key) Result {
	t.Helper()
	res := tp.mgr.Start(context.Background(), k)
	if res.Status != StatusRunning {
		t.Fatalf("Start(%s) = %+v, want running", k, res)
	}
	return res
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
