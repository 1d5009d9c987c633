package pool

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/port"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/supervisor"
)

// Status is the outcome reported by Start.
type Status string

const (
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// Result is what Start returns. Failures are carried as values: Status is
// StatusError, Port is 0 and Err says why.
type Result struct {
	Port   int
	Status Status
	Err    error
}

// Processes is the process-management surface the pool needs.
// *supervisor.Supervisor implements it.
type Processes interface {
	Spawn(ctx context.Context, spec supervisor.Spec) (int, error)
	IsAlive(pid int) bool
	Terminate(ctx context.Context, pid int) error
	LogPath(owner, branch string) string
}

// ProfileDetector resolves how to start the branch checked out at dir.
type ProfileDetector func(dir string) (supervisor.Profile, error)

// ProbeFactory builds the readiness probe for a sandbox port.
type ProbeFactory func(port int) health.Probe

type call struct {
	done chan struct{}
	res  Result
}

// Manager owns the local sandbox pool.
type Manager struct {
	reg     *registry.Registry
	procs   Processes
	cfg     config.PoolConfig
	detect  ProfileDetector
	probe   ProbeFactory
	audit   *audit.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	inflight *xsync.MapOf[Key, *call]

	// base bounds readiness polling; Shutdown cancels it.
	base   context.Context
	cancel context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets the pool limits and launch defaults.
func WithConfig(cfg config.PoolConfig) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithAudit records lifecycle events to l.
func WithAudit(l *audit.Logger) Option {
	return func(m *Manager) { m.audit = l }
}

// WithMetrics records lifecycle metrics to mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithProfileDetector replaces launch profile detection.
func WithProfileDetector(d ProfileDetector) Option {
	return func(m *Manager) { m.detect = d }
}

// WithProbe replaces the readiness probe.
func WithProbe(p ProbeFactory) Option {
	return func(m *Manager) { m.probe = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager over reg and procs.
func New(reg *registry.Registry, procs Processes, opts ...Option) *Manager {
	m := &Manager{
		reg:      reg,
		procs:    procs,
		cfg:      config.Default().Pool,
		now:      time.Now,
		inflight: xsync.NewMapOf[Key, *call](),
	}
	m.base, m.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(m)
	}
	if m.detect == nil {
		defaultCommand := m.cfg.DefaultCommand
		m.detect = func(dir string) (supervisor.Profile, error) {
			return supervisor.DetectLaunchProfile(dir, defaultCommand)
		}
	}
	if m.probe == nil {
		m.probe = func(p int) health.Probe {
			return health.HTTPProbe(nil, health.URL(p))
		}
	}
	return m
}

// Config returns the pool configuration in effect.
func (m *Manager) Config() config.PoolConfig {
	return m.cfg
}

// LogPath returns where the dev server output for key is captured.
func (m *Manager) LogPath(key Key) string {
	return m.procs.LogPath(key.OwnerID, key.BranchID)
}

// Shutdown interrupts every readiness poll in progress.
func (m *Manager) Shutdown() {
	m.cancel()
}

// Start returns a running dev server for key, spawning one if needed.
func (m *Manager) Start(ctx context.Context, key Key) Result {
	if err := key.Validate(); err != nil {
		return Result{Status: StatusError, Err: err}
	}

	c := &call{done: make(chan struct{})}
	if existing, loaded := m.inflight.LoadOrStore(key, c); loaded {
		select {
		case <-existing.done:
			return existing.res
		case <-ctx.Done():
			return Result{Status: StatusError, Err: ctx.Err()}
		}
	}
	defer func() {
		m.inflight.Delete(key)
		close(c.done)
	}()

	c.res = m.start(ctx, key)
	return c.res
}

func (m *Manager) start(ctx context.Context, key Key) Result {
	var (
		srv     registry.Server
		reused  bool
		failure error
		crashed []registry.Server
		evicted []registry.Server
	)

	err := m.reg.Update(func(s *registry.State) error {
		crashed = s.RemoveIf(func(e registry.Server) bool { return !m.procs.IsAlive(e.PID) })

		if cur, ok := s.Get(key.OwnerID, key.BranchID); ok {
			cur.LastAccessed = m.now()
			s.Put(cur)
			srv, reused = cur, true
			return nil
		}

		if len(s.Servers) >= m.cfg.MaxSandboxes {
			victim, _ := s.LeastRecentlyUsed()
			// The victim's port must be free before it is handed out again,
			// so it is terminated while the lock is held.
			if err := m.procs.Terminate(ctx, victim.PID); err != nil {
				logging.Warn("failed to terminate evicted sandbox", "sandbox", victim.Key(), "pid", victim.PID, "error", err)
			}
			s.Remove(victim.OwnerID, victim.BranchID)
			evicted = append(evicted, victim)
		}

		p, ok := port.Allocate(m.cfg.PortRange, port.UsedPorts(s.Servers))
		if !ok {
			failure = errors.PortExhausted(m.cfg.PortRange.From, m.cfg.PortRange.To)
			return nil
		}

		dir, err := securejoin.SecureJoin(m.cfg.WorkspaceRoot, filepath.Join(key.OwnerID, key.BranchID))
		if err != nil {
			failure = errors.SpawnFailed(key.String(), err)
			return nil
		}
		profile, err := m.detect(dir)
		if err != nil {
			failure = errors.SpawnFailed(key.String(), err)
			return nil
		}

		env := make(map[string]string, len(m.cfg.Env)+len(profile.Env))
		for k, v := range m.cfg.Env {
			env[k] = v
		}
		for k, v := range profile.Env {
			env[k] = v
		}

		pid, err := m.procs.Spawn(ctx, supervisor.Spec{
			Argv:    profile.Argv,
			Dir:     profile.Dir,
			Port:    p,
			Env:     env,
			LogPath: m.procs.LogPath(key.OwnerID, key.BranchID),
			OnExit:  m.onExit(key),
		})
		if err != nil {
			failure = err
			return nil
		}

		now := m.now()
		srv = registry.Server{
			OwnerID:      key.OwnerID,
			BranchID:     key.BranchID,
			Port:         p,
			PID:          pid,
			LastAccessed: now,
			StartedAt:    now,
			Command:      profile.Command,
			State:        registry.PhaseStarting,
			Cwd:          profile.Dir,
		}
		s.Put(srv)
		return nil
	})
	if err != nil {
		logging.Warn("failed to persist registry", "path", m.reg.Path(), "error", err)
	}

	for _, dead := range crashed {
		m.recordCrash(dead)
	}
	for _, victim := range evicted {
		logging.Info("evicted least recently used sandbox", "sandbox", victim.Key(), "for", key.String())
		m.record(audit.EventEvict, victim, "for "+key.String())
		m.metrics.ObserveEviction()
		m.metrics.ObserveStop()
	}
	m.updateLive()

	if failure != nil {
		logging.Warn("sandbox start failed", "sandbox", key.String(), "error", failure)
		m.record(audit.EventError, registry.Server{OwnerID: key.OwnerID, BranchID: key.BranchID}, failure.Error())
		m.metrics.ObserveStart(metrics.ResultError)
		return Result{Status: StatusError, Err: failure}
	}
	if reused {
		m.metrics.ObserveStart(metrics.ResultReused)
		return Result{Port: srv.Port, Status: StatusRunning}
	}

	logging.Info("spawned sandbox", "sandbox", key.String(), "pid", srv.PID, "port", srv.Port, "command", srv.Command)
	m.record(audit.EventStart, srv, srv.Command)

	return m.awaitReady(ctx, key, srv)
}

func (m *Manager) awaitReady(ctx context.Context, key Key, srv registry.Server) Result {
	pollCtx, cancel := context.WithCancel(m.base)
	defer cancel()

	crashed := false
	probe := m.probe(srv.Port)
	began := m.now()
	ready := health.Poll(pollCtx, func(ctx context.Context) bool {
		if !m.procs.IsAlive(srv.PID) {
			crashed = true
			cancel()
			return false
		}
		return probe(ctx)
	}, m.cfg.ReadinessInterval.Duration, m.cfg.ReadinessAttempts)

	if !ready {
		var failure error = errors.ReadinessTimeout(srv.Port, m.cfg.ReadinessAttempts)
		if crashed {
			failure = errors.ProcessCrashed(key.String(), srv.PID)
		}
		logging.Warn("sandbox never became ready", "sandbox", key.String(), "port", srv.Port, "error", failure)
		m.record(audit.EventTimeout, srv, failure.Error())
		if err := m.Stop(ctx, key); err != nil {
			logging.Warn("failed to stop unready sandbox", "sandbox", key.String(), "error", err)
		}
		m.metrics.ObserveStart(metrics.ResultError)
		return Result{Status: StatusError, Err: failure}
	}

	err := m.reg.Update(func(s *registry.State) error {
		if cur, ok := s.Get(key.OwnerID, key.BranchID); ok && cur.PID == srv.PID {
			cur.State = registry.PhaseRunning
			s.Put(cur)
		}
		return nil
	})
	if err != nil {
		logging.Warn("failed to persist registry", "path", m.reg.Path(), "error", err)
	}

	m.metrics.ObserveReady(m.now().Sub(began))
	m.metrics.ObserveStart(metrics.ResultSpawned)
	m.record(audit.EventReady, srv, "")
	logging.Info("sandbox ready", "sandbox", key.String(), "port", srv.Port)
	return Result{Port: srv.Port, Status: StatusRunning}
}

// onExit removes the entry for key if it still belongs to pid.
func (m *Manager) onExit(key Key) func(pid int, err error) {
	return func(pid int, exitErr error) {
		var removed []registry.Server
		err := m.reg.Update(func(s *registry.State) error {
			removed = s.RemoveIf(func(e registry.Server) bool {
				return key.matches(e) && e.PID == pid
			})
			return nil
		})
		if err != nil {
			logging.Warn("failed to persist registry", "path", m.reg.Path(), "error", err)
		}

		for _, srv := range removed {
			if srv.State == registry.PhaseStopping {
				continue
			}
			logging.Warn("sandbox process exited", "sandbox", key.String(), "pid", pid, "error", exitErr)
			m.recordCrash(srv)
		}
		if len(removed) > 0 {
			m.updateLive()
		}
	}
}

// Stop terminates the sandbox for key and removes it. A missing key is a
// no-op.
func (m *Manager) Stop(ctx context.Context, key Key) error {
	var (
		target registry.Server
		found  bool
	)
	err := m.reg.Update(func(s *registry.State) error {
		cur, ok := s.Get(key.OwnerID, key.BranchID)
		if !ok {
			return nil
		}
		cur.State = registry.PhaseStopping
		s.Put(cur)
		target, found = cur, true
		return nil
	})
	if err != nil {
		logging.Warn("failed to persist registry", "path", m.reg.Path(), "error", err)
	}
	if !found {
		return nil
	}

	termErr := m.procs.Terminate(ctx, target.PID)

	err = m.reg.Update(func(s *registry.State) error {
		s.RemoveIf(func(e registry.Server) bool { return key.matches(e) && e.PID == target.PID })
		return nil
	})
	if err != nil {
		logging.Warn("failed to persist registry", "path", m.reg.Path(), "error", err)
	}

	logging.Info("stopped sandbox", "sandbox", key.String(), "pid", target.PID)
	m.record(audit.EventStop, target, "")
	m.metrics.ObserveStop()
	m.updateLive()

	if termErr != nil {
		return fmt.Errorf("failed to terminate %s: %w", key, termErr)
	}
	return nil
}

// Touch marks key as just used. It reports whether the key is tracked.
func (m *Manager) Touch(key Key) bool {
	touched := false
	err := m.reg.Update(func(s *registry.State) error {
		cur, ok := s.Get(key.OwnerID, key.BranchID)
		if !ok {
			return nil
		}
		cur.LastAccessed = m.now()
		s.Put(cur)
		touched = true
		return nil
	})
	if err != nil {
		logging.Warn("failed to persist registry", "path", m.reg.Path(), "error", err)
	}
	return touched
}

// Query returns the entry for key if its process is alive. It never
// mutates the registry.
func (m *Manager) Query(key Key) (registry.Server, bool) {
	srv, ok := m.reg.Load().Get(key.OwnerID, key.BranchID)
	if !ok || !m.procs.IsAlive(srv.PID) {
		return registry.Server{}, false
	}
	return srv, true
}

// List returns every live entry, least recently used first.
func (m *Manager) List() []registry.Server {
	s := m.reg.Load()
	live := &registry.State{}
	for _, srv := range s.Servers {
		if m.procs.IsAlive(srv.PID) {
			live.Servers = append(live.Servers, srv)
		}
	}
	live.SortByAccess()
	return live.Servers
}

// StopAll stops every tracked sandbox, including ones started while it
// runs, and leaves the registry empty of them. Each entry is stopped once.
func (m *Manager) StopAll(ctx context.Context) error {
	type instance struct {
		key Key
		pid int
	}
	var errs []error
	stopped := make(map[instance]bool)
	for {
		var pending []registry.Server
		for _, srv := range m.reg.Load().Servers {
			if !stopped[instance{KeyOf(srv), srv.PID}] {
				pending = append(pending, srv)
			}
		}
		if len(pending) == 0 {
			break
		}
		for _, srv := range pending {
			stopped[instance{KeyOf(srv), srv.PID}] = true
			if err := m.Stop(ctx, KeyOf(srv)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	m.updateLive()
	return errors.Join(errs...)
}

// Reconcile returns the entries whose process is dead and, unless dryRun is
// set, removes them.
func (m *Manager) Reconcile(dryRun bool) []registry.Server {
	dead := func(e registry.Server) bool { return !m.procs.IsAlive(e.PID) }

	if dryRun {
		var found []registry.Server
		for _, srv := range m.reg.Load().Servers {
			if dead(srv) {
				found = append(found, srv)
			}
		}
		return found
	}

	var removed []registry.Server
	err := m.reg.Update(func(s *registry.State) error {
		removed = s.RemoveIf(dead)
		return nil
	})
	if err != nil {
		logging.Warn("failed to persist registry", "path", m.reg.Path(), "error", err)
	}
	for _, srv := range removed {
		m.recordCrash(srv)
	}
	m.updateLive()
	return removed
}

func (m *Manager) recordCrash(srv registry.Server) {
	m.record(audit.EventCrash, srv, fmt.Sprintf("process %d not running", srv.PID))
	m.metrics.ObserveCrash()
}

func (m *Manager) record(t audit.EventType, srv registry.Server, details string) {
	if m.audit == nil {
		return
	}
	err := m.audit.Log(audit.Event{
		Type:    t,
		Sandbox: srv.Key(),
		Port:    srv.Port,
		PID:     srv.PID,
		Details: details,
	})
	if err != nil {
		logging.Debug("failed to write audit event", "type", t, "error", err)
	}
}

func (m *Manager) updateLive() {
	if m.metrics == nil {
		return
	}
	m.metrics.SetLive(len(m.reg.Load().Servers))
}
