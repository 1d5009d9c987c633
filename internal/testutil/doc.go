// Package testutil provides test fixtures and utilities.
//
// # Test Environment
//
// NewTestEnv builds an app.App over a temp state dir and a
// system.MockSignaler, and installs it as app.Default for the duration
// of the test:
//
//	env := testutil.NewTestEnv(t)
//	env.AddServer(registry.Server{OwnerID: "alice", BranchID: "main", Port: 9000, PID: 42}, true)
//	env.CreateBranch("alice", "main", map[string]string{"package.json": `{"scripts":{"dev":"vite"}}`})
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/valid_config.toml
//	fixtures/invalid_config.toml
//	fixtures/registry.json
//	fixtures/override.yaml
//
// and loaded with typed helpers:
//
//	cfg, err := testutil.ValidConfig()
//	state, err := testutil.ValidRegistry()
//	data, err := testutil.LoadFixture("override.yaml")
package testutil
