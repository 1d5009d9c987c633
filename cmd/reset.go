package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
)

var resetCmd = &cobra.Command{
	Use:   "reset <owner>/<branch>",
	Short: "Restart a sandbox's dev server",
	Long: `Stops the dev server for a branch if one is running, then starts a fresh
one. The new process may get a different port.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	k, err := keyArgs(args)
	if err != nil {
		return err
	}
	a := application()

	if _, ok := a.Registry.Load().Get(k.OwnerID, k.BranchID); ok {
		logInfo("Stopping dev server...")
		logging.Debug("stopping sandbox for reset", "sandbox", k.String())
		if err := a.Pool.Stop(cmd.Context(), k); err != nil {
			logWarning("Failed to stop dev server: %v", err)
		}
	}

	logInfo("Starting dev server...")
	res := a.Pool.Start(cmd.Context(), k)
	if res.Status != pool.StatusRunning {
		return res.Err
	}

	logSuccess("Reset sandbox %s (port %d)", k, res.Port)
	fmt.Fprintln(out(cmd), health.URL(res.Port))
	return nil
}
