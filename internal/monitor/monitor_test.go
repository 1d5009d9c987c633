package monitor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

type staticSource struct {
	state *registry.State
}

func (s *staticSource) Load() *registry.State {
	return &registry.State{Servers: append([]registry.Server(nil), s.state.Servers...)}
}

func devServer(t *testing.T) int {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)
	_, p, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func aliveSet(pids ...int) func(int) bool {
	set := make(map[int]bool)
	for _, p := range pids {
		set[p] = true
	}
	return func(pid int) bool { return set[pid] }
}

func TestMonitor_New(t *testing.T) {
	m := New(0, &staticSource{state: &registry.State{}}, aliveSet())
	if m.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s default", m.interval)
	}
	if m.auditLog != nil {
		t.Error("auditLog should default to nil")
	}
}

func TestMonitor_Options(t *testing.T) {
	auditLogger := audit.NewLogger(t.TempDir())
	mt := metrics.New()

	m := New(time.Minute, &staticSource{state: &registry.State{}}, aliveSet(),
		WithAuditLogger(auditLogger),
		WithMetrics(mt),
	)
	if m.auditLog == nil {
		t.Error("auditLog should be set")
	}
	if m.metrics == nil {
		t.Error("metrics should be set")
	}
}

func TestMonitor_CheckAllEmpty(t *testing.T) {
	m := New(time.Second, &staticSource{state: &registry.State{}}, aliveSet())
	if results := m.CheckAll(context.Background()); len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestMonitor_CheckAll(t *testing.T) {
	port := devServer(t)
	src := &staticSource{state: &registry.State{Servers: []registry.Server{
		{OwnerID: "alice", BranchID: "up", Port: port, PID: 10, State: registry.PhaseRunning, StartedAt: time.Now()},
		{OwnerID: "alice", BranchID: "dead", Port: 9, PID: 11, State: registry.PhaseRunning},
	}}}
	auditLogger := audit.NewLogger(t.TempDir())
	mt := metrics.New()

	m := New(time.Second, src, aliveSet(10), WithAuditLogger(auditLogger), WithMetrics(mt))
	results := m.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Status != health.StatusHealthy {
		t.Errorf("alice/up status = %s, want healthy", results[0].Status)
	}
	if results[1].Status != health.StatusStopped {
		t.Errorf("alice/dead status = %s, want stopped", results[1].Status)
	}

	if got := liveGauge(t, mt); got != 1 {
		t.Errorf("live gauge = %v, want 1", got)
	}

	events, err := auditLogger.Events("alice/up")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].Type != audit.EventHealth || events[0].Details != "healthy" {
		t.Errorf("unexpected events: %+v", events)
	}

	// The monitor never removes entries.
	if len(src.state.Servers) != 2 {
		t.Error("monitor must not purge the registry")
	}
}

func TestMonitor_RecordsOnlyChanges(t *testing.T) {
	port := devServer(t)
	src := &staticSource{state: &registry.State{Servers: []registry.Server{
		{OwnerID: "alice", BranchID: "main", Port: port, PID: 10},
	}}}
	auditLogger := audit.NewLogger(t.TempDir())
	alive := map[int]bool{10: true}

	m := New(time.Second, src, func(pid int) bool { return alive[pid] }, WithAuditLogger(auditLogger))
	ctx := context.Background()
	m.CheckAll(ctx)
	m.CheckAll(ctx)

	alive[10] = false
	m.CheckAll(ctx)

	events, err := auditLogger.Events("alice/main")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var details []string
	for _, e := range events {
		details = append(details, e.Details)
	}
	if len(details) != 2 || details[0] != "healthy" || details[1] != "stopped" {
		t.Errorf("event details = %v, want [healthy stopped]", details)
	}
}

func TestMonitor_ForgetsRemovedKeys(t *testing.T) {
	src := &staticSource{state: &registry.State{Servers: []registry.Server{
		{OwnerID: "alice", BranchID: "main", PID: 10},
	}}}
	m := New(time.Second, src, aliveSet())
	m.CheckAll(context.Background())

	src.state.Servers = nil
	m.CheckAll(context.Background())
	if len(m.last) != 0 {
		t.Errorf("last = %v, want empty after the entry is gone", m.last)
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	m := New(time.Millisecond, &staticSource{state: &registry.State{}}, aliveSet())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func liveGauge(t *testing.T, mt *metrics.Metrics) float64 {
	t.Helper()
	families, err := mt.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "forage_pool_sandboxes_live" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("live gauge not registered")
	return 0
}
