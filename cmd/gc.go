package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gcForce bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove registry entries whose process has died",
	Long: `Reconciles the registry with the processes that are actually running.

Without --force, prints the entries that would be removed (dry run).
With --force, removes them and frees their ports.

Crashed dev servers are otherwise only noticed lazily, when their key is
started again or the pool needs the capacity.`,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "Actually remove dead entries (default is dry run)")
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	dead := application().Pool.Reconcile(!gcForce)

	if len(dead) == 0 {
		logInfo("No dead sandboxes found")
		return nil
	}

	w := out(cmd)
	if !gcForce {
		fmt.Fprintln(w, "Dry run (use --force to actually clean up):")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Dead sandboxes (process not running):")
	}
	for _, srv := range dead {
		fmt.Fprintf(w, "  %s (port %d, pid %d)\n", srv.Key(), srv.Port, srv.PID)
	}
	if gcForce {
		logSuccess("Removed %d dead sandbox(es)", len(dead))
	}
	return nil
}
