package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/system"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.Pool.WorkspaceRoot = filepath.Join(dir, "workspaces")
	return cfg
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer app.Close()

	if app.Config != cfg {
		t.Error("Config should be the one passed in")
	}
	for _, dir := range []string{app.Paths.StateDir, app.Paths.LogsDir, app.Paths.AuditDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s should have been created", dir)
		}
	}
	if app.Registry == nil || app.Supervisor == nil || app.Pool == nil {
		t.Fatal("New() should wire registry, supervisor and pool")
	}
	if app.Registry.Path() != app.Paths.RegistryPath {
		t.Errorf("Registry path = %q, want %q", app.Registry.Path(), app.Paths.RegistryPath)
	}
	if got := app.Pool.Config().MaxSandboxes; got != cfg.Pool.MaxSandboxes {
		t.Errorf("pool MaxSandboxes = %d, want %d", got, cfg.Pool.MaxSandboxes)
	}
}

func TestNew_UnwritableStateDir(t *testing.T) {
	cfg := testConfig(t)
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg.StateDir = filepath.Join(file, "state")

	if _, err := New(cfg); err == nil {
		t.Error("New() should fail when the state dir cannot be created")
	}
}

func TestWithSignaler(t *testing.T) {
	sig := system.NewMockSignaler(4242)
	app, err := New(testConfig(t), WithSignaler(sig))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer app.Close()

	if !app.IsAlive(4242) {
		t.Error("IsAlive(4242) should use the injected signaler")
	}
	if app.IsAlive(4243) {
		t.Error("IsAlive(4243) should be false")
	}
}

func TestWithFileSystem(t *testing.T) {
	fs := system.NewMockFS()
	app, err := New(testConfig(t), WithFileSystem(fs))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer app.Close()

	if got := len(app.Registry.Load().Servers); got != 0 {
		t.Errorf("empty filesystem should give an empty registry, got %d", got)
	}
}

func TestMachines_Singleton(t *testing.T) {
	app, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer app.Close()

	if app.Machines() == nil {
		t.Fatal("Machines() returned nil")
	}
	if app.Machines() != app.Machines() {
		t.Error("Machines() should return the same client")
	}
}

func TestInventory_OpenedOnce(t *testing.T) {
	app, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := os.Stat(app.Paths.InventoryPath); !os.IsNotExist(err) {
		t.Fatal("inventory should not exist before first use")
	}

	first, err := app.Inventory()
	if err != nil {
		t.Fatalf("Inventory() error: %v", err)
	}
	second, err := app.Inventory()
	if err != nil {
		t.Fatalf("Inventory() error: %v", err)
	}
	if first != second {
		t.Error("Inventory() should return the same store")
	}

	if err := app.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestSetDefault(t *testing.T) {
	original := Default
	defer SetDefault(original)

	app, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer app.Close()

	SetDefault(app)
	if Default != app {
		t.Error("SetDefault did not set the default app")
	}

	ResetDefault()
	if Default != nil {
		t.Error("ResetDefault should clear the default app")
	}
}
