// Package testutil provides test utilities for command and integration tests
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/system"
)

// TestEnv holds the test environment
type TestEnv struct {
	T        *testing.T
	TmpDir   string
	Config   *config.Config
	Signaler *system.MockSignaler
	App      *app.App
}

// Option adjusts the config before the App is built.
type Option func(*config.Config)

// NewTestEnv creates a test environment whose state lives under a temp
// dir and whose process signals go to a MockSignaler. The App becomes
// app.Default until the test ends.
func NewTestEnv(t *testing.T, opts ...Option) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.StateDir = filepath.Join(tmpDir, "state")
	cfg.Pool.WorkspaceRoot = filepath.Join(tmpDir, "workspaces")
	cfg.Pool.GracePeriod = config.Duration{Duration: 10 * time.Millisecond}
	cfg.Remote.Token = "test-token"
	cfg.Remote.RetryDelay = config.Duration{Duration: time.Millisecond}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := os.MkdirAll(cfg.Pool.WorkspaceRoot, 0755); err != nil {
		t.Fatalf("Failed to create workspace root: %v", err)
	}

	sig := system.NewMockSignaler()
	sig.KillOnTerm = true

	testApp, err := app.New(cfg, app.WithSignaler(sig))
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	originalDefault := app.Default
	app.SetDefault(testApp)
	t.Cleanup(func() {
		app.SetDefault(originalDefault)
		testApp.Close()
	})

	return &TestEnv{
		T:        t,
		TmpDir:   tmpDir,
		Config:   cfg,
		Signaler: sig,
		App:      testApp,
	}
}

// AddServer writes srv to the registry and, when live is set, makes its
// pid answer signals.
func (e *TestEnv) AddServer(srv registry.Server, live bool) {
	e.T.Helper()

	if srv.State == "" {
		srv.State = registry.PhaseRunning
	}
	if srv.StartedAt.IsZero() {
		srv.StartedAt = time.Now().Add(-time.Hour)
	}
	if srv.LastAccessed.IsZero() {
		srv.LastAccessed = srv.StartedAt
	}

	err := e.App.Registry.Update(func(s *registry.State) error {
		s.Put(srv)
		return nil
	})
	if err != nil {
		e.T.Fatalf("Failed to add server: %v", err)
	}

	if live {
		e.Signaler.Spawn(srv.PID)
	}
}

// Server returns the registry entry for owner/branch, if any.
func (e *TestEnv) Server(owner, branch string) (registry.Server, bool) {
	return e.App.Registry.Load().Get(owner, branch)
}

// CreateBranch creates a checked-out branch directory with the given
// files, relative to the branch root.
func (e *TestEnv) CreateBranch(owner, branch string, files map[string]string) string {
	e.T.Helper()

	dir := filepath.Join(e.Config.Pool.WorkspaceRoot, owner, branch)
	if err := os.MkdirAll(dir, 0755); err != nil {
		e.T.Fatalf("Failed to create branch: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			e.T.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			e.T.Fatalf("Failed to write %s: %v", path, err)
		}
	}
	return dir
}

// WriteLog writes a sandbox's log file.
func (e *TestEnv) WriteLog(owner, branch, content string) string {
	e.T.Helper()

	path := e.App.Supervisor.LogPath(owner, branch)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		e.T.Fatalf("Failed to create log dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		e.T.Fatalf("Failed to write log: %v", err)
	}
	return path
}
