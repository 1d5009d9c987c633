package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

// application returns the wired application.
// This is a helper to reduce repetition in commands.
func application() *app.App {
	return app.Default
}

// keyArgs accepts either "owner/branch" or "owner branch".
func keyArgs(args []string) (pool.Key, error) {
	switch len(args) {
	case 1:
		return pool.ParseKey(args[0])
	case 2:
		k := pool.Key{OwnerID: args[0], BranchID: args[1]}
		return k, k.Validate()
	}
	return pool.Key{}, errors.ValidationError("expected <owner>/<branch> or <owner> <branch>")
}

// findServer loads the registry entry for key or returns SandboxNotFound.
func findServer(k pool.Key) (registry.Server, error) {
	srv, ok := application().Registry.Load().Get(k.OwnerID, k.BranchID)
	if !ok {
		return registry.Server{}, errors.SandboxNotFound(k.String())
	}
	return srv, nil
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

func formatStatus(status health.Status) string {
	switch status {
	case health.StatusHealthy:
		return "✓ healthy"
	case health.StatusStarting:
		return "… starting"
	case health.StatusUnhealthy:
		return "⚠ unhealthy"
	case health.StatusStopped:
		return "● stopped"
	default:
		return string(status)
	}
}

func boolStatus(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
