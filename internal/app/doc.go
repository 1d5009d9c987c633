// Package app provides the application context for forage-pool.
//
// This package wires the registry, supervisor, pool manager, audit log,
// metrics and remote machines client from a loaded configuration, using
// the functional options pattern so tests can inject fakes.
//
// # Creating an App
//
//	cfg, err := config.Load("")
//	a, err := app.New(cfg)
//	defer a.Close()
//
//	// Testing with fake process signals and an in-memory filesystem
//	a, err := app.New(cfg,
//	    app.WithSignaler(system.NewMockSignaler()),
//	    app.WithFileSystem(system.NewMockFS()),
//	)
//
// # Lazy Dependencies
//
// The machines client and the SQLite inventory are created on first use,
// so local-only commands never open the inventory database:
//
//	client := a.Machines()
//	store, err := a.Inventory()
package app
