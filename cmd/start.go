package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
)

var startCmd = &cobra.Command{
	Use:   "start <owner>/<branch>",
	Short: "Start or reuse the sandbox for a branch",
	Long: `Returns the port of a running dev server for the branch checked out at
<workspace_root>/<owner>/<branch>, spawning one if needed.

When the pool is full the least recently used sandbox is stopped first.
The command waits until the dev server answers HTTP on its port.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	k, err := keyArgs(args)
	if err != nil {
		return err
	}

	logging.Debug("starting sandbox", "sandbox", k.String())
	logInfo("Starting %s...", k)

	res := application().Pool.Start(cmd.Context(), k)
	if res.Status != pool.StatusRunning {
		return res.Err
	}

	logSuccess("Sandbox %s running on port %d", k, res.Port)
	fmt.Fprintln(out(cmd), health.URL(res.Port))
	return nil
}
