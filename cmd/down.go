package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop every sandbox and empty the registry",
	Args:  cobra.NoArgs,
	RunE:  runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	a := application()
	n := len(a.Registry.Load().Servers)

	logging.Debug("stopping all sandboxes", "count", n)
	if n == 0 {
		logInfo("No sandboxes to stop")
		return nil
	}

	logInfo("Stopping %d sandbox(es)...", n)
	if err := a.Pool.StopAll(cmd.Context()); err != nil {
		logWarning("Some sandboxes did not stop cleanly: %v", err)
		return err
	}
	logSuccess("All sandboxes stopped")
	return nil
}
