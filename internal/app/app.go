// Package app provides the application context for forage-pool.
// It allows dependency injection for testing.
package app

import (
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/inventory"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/machines"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/supervisor"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/system"
)

// App holds the application dependencies
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Paths holds the state locations derived from Config
	Paths *config.Paths

	// Registry is the persistent server registry
	Registry *registry.Registry

	// Supervisor spawns and terminates dev-server processes
	Supervisor *supervisor.Supervisor

	// Pool is the local sandbox pool
	Pool *pool.Manager

	// Audit records lifecycle events
	Audit *audit.Logger

	// Metrics is shared by the pool, the HTTP API and the machines client
	Metrics *metrics.Metrics

	fs       system.FileSystem
	signaler system.Signaler
	poolOpts []pool.Option

	machinesOnce sync.Once
	machines     *machines.Client
	machineOpts  []machines.Option

	invMu     sync.Mutex
	inventory *inventory.Store
}

// Option is a function that configures the App
type Option func(*App)

// WithFileSystem sets the filesystem used by the registry
func WithFileSystem(fs system.FileSystem) Option {
	return func(a *App) {
		a.fs = fs
	}
}

// WithSignaler sets the signal delivery used by the supervisor
func WithSignaler(s system.Signaler) Option {
	return func(a *App) {
		a.signaler = s
	}
}

// WithPoolOptions passes extra options to the pool manager
func WithPoolOptions(opts ...pool.Option) Option {
	return func(a *App) {
		a.poolOpts = append(a.poolOpts, opts...)
	}
}

// WithMachineOptions passes extra options to the machines client
func WithMachineOptions(opts ...machines.Option) Option {
	return func(a *App) {
		a.machineOpts = append(a.machineOpts, opts...)
	}
}

// New wires the application from cfg. State directories are created if
// they are missing.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	a := &App{
		Config:   cfg,
		Paths:    cfg.Paths(),
		fs:       system.DefaultFS(),
		signaler: system.DefaultSignaler(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.Paths.Ensure(); err != nil {
		return nil, errors.ConfigError("failed to prepare state directory", err)
	}

	a.Metrics = metrics.New()
	a.Audit = audit.NewLogger(a.Paths.AuditDir)
	a.Registry = registry.New(a.Paths.RegistryPath, a.fs)
	a.Supervisor = supervisor.New(a.Paths.LogsDir,
		supervisor.WithGracePeriod(cfg.Pool.GracePeriod.Duration),
		supervisor.WithNodeEnv(cfg.Pool.NodeEnv),
		supervisor.WithSignaler(a.signaler),
	)

	poolOpts := append([]pool.Option{
		pool.WithConfig(cfg.Pool),
		pool.WithAudit(a.Audit),
		pool.WithMetrics(a.Metrics),
	}, a.poolOpts...)
	a.Pool = pool.New(a.Registry, a.Supervisor, poolOpts...)

	logging.Debug("application initialized",
		"state_dir", a.Paths.StateDir,
		"ports", cfg.Pool.PortRange,
		"max_sandboxes", cfg.Pool.MaxSandboxes)

	return a, nil
}

// IsAlive reports whether pid is a live process
func (a *App) IsAlive(pid int) bool {
	return a.Supervisor.IsAlive(pid)
}

// Machines returns the remote machines client, built on first use
func (a *App) Machines() *machines.Client {
	a.machinesOnce.Do(func() {
		opts := append([]machines.Option{machines.WithMetrics(a.Metrics)}, a.machineOpts...)
		a.machines = machines.New(a.Config.Remote, opts...)
	})
	return a.machines
}

// Inventory opens the machine inventory on first use
func (a *App) Inventory() (*inventory.Store, error) {
	a.invMu.Lock()
	defer a.invMu.Unlock()

	if a.inventory != nil {
		return a.inventory, nil
	}
	store, err := inventory.Open(a.Paths.InventoryPath)
	if err != nil {
		return nil, err
	}
	a.inventory = store
	return store, nil
}

// Close releases the inventory and stops readiness polling. It does not
// stop running sandboxes.
func (a *App) Close() error {
	a.Pool.Shutdown()

	a.invMu.Lock()
	defer a.invMu.Unlock()
	if a.inventory == nil {
		return nil
	}
	err := a.inventory.Close()
	a.inventory = nil
	return err
}

// Default is the application instance used by the CLI commands
var Default *App

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault clears the default application instance
func ResetDefault() {
	Default = nil
}
