package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
)

var touchCmd = &cobra.Command{
	Use:   "touch <owner>/<branch>",
	Short: "Mark a sandbox as recently used",
	Long: `Updates the last-accessed time of a sandbox so it is evicted later.
The preview proxy does this on every request; use this for access that
bypasses it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runTouch,
}

func init() {
	rootCmd.AddCommand(touchCmd)
}

func runTouch(cmd *cobra.Command, args []string) error {
	k, err := keyArgs(args)
	if err != nil {
		return err
	}
	if !application().Pool.Touch(k) {
		return errors.SandboxNotFound(k.String())
	}
	logSuccess("Touched %s", k)
	return nil
}
