package cmd

import (
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <owner>/<branch>",
	Short: "Stop a sandbox and release its port",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	k, err := keyArgs(args)
	if err != nil {
		return err
	}
	if _, err := findServer(k); err != nil {
		return err
	}

	logInfo("Stopping %s...", k)
	if err := application().Pool.Stop(cmd.Context(), k); err != nil {
		return err
	}
	logSuccess("Sandbox %s stopped", k)
	return nil
}
