// Package monitor provides background health monitoring for sandboxes.
//
// The monitor only observes. Dead entries stay in the registry until the
// pool purges them on its next start or a gc run.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

// CheckResult holds the result of a single sandbox health check.
type CheckResult struct {
	Sandbox string
	Port    int
	Status  health.Status
}

// Source returns the current registry snapshot.
// *registry.Registry implements it.
type Source interface {
	Load() *registry.State
}

// Monitor periodically checks the health of all sandboxes.
type Monitor struct {
	interval time.Duration
	source   Source
	alive    func(pid int) bool
	auditLog *audit.Logger
	metrics  *metrics.Metrics

	mu   sync.Mutex
	last map[string]health.Status
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAuditLogger sets the audit logger for recording health changes.
func WithAuditLogger(logger *audit.Logger) Option {
	return func(m *Monitor) {
		m.auditLog = logger
	}
}

// WithMetrics publishes the live sandbox count after each pass.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

// New creates a new Monitor. alive reports whether a pid is running.
func New(interval time.Duration, source Source, alive func(pid int) bool, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &Monitor{
		interval: interval,
		source:   source,
		alive:    alive,
		last:     make(map[string]health.Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the monitoring loop. It blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	logging.Debug("starting health monitor", "interval", m.interval)

	// Run an immediate check, then loop on interval.
	m.CheckAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("health monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll checks every registry entry once. A health event is recorded
// whenever an entry's status differs from the previous pass.
func (m *Monitor) CheckAll(ctx context.Context) []CheckResult {
	state := m.source.Load()

	var results []CheckResult
	live := 0
	seen := make(map[string]bool, len(state.Servers))
	for _, srv := range state.Servers {
		if ctx.Err() != nil {
			break
		}

		status := health.GetSummary(ctx, srv, m.alive)
		if status != health.StatusStopped {
			live++
		}
		key := srv.Key()
		seen[key] = true
		results = append(results, CheckResult{Sandbox: key, Port: srv.Port, Status: status})

		if m.changed(key, status) {
			logging.Debug("sandbox health changed", "sandbox", key, "status", status)
			if m.auditLog != nil {
				_ = m.auditLog.Log(audit.Event{
					Type:    audit.EventHealth,
					Sandbox: key,
					Port:    srv.Port,
					PID:     srv.PID,
					Details: string(status),
				})
			}
		}
	}

	m.forget(seen)
	m.metrics.SetLive(live)
	return results
}

func (m *Monitor) changed(key string, status health.Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.last[key]
	m.last[key] = status
	return !ok || prev != status
}

// forget drops keys no longer in the registry so a later sandbox with the
// same key starts fresh.
func (m *Monitor) forget(seen map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.last {
		if !seen[key] {
			delete(m.last, key)
		}
	}
}
