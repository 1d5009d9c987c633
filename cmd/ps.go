package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
)

var psAll bool

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List sandboxes, least recently used first",
	RunE:  runPs,
}

func init() {
	psCmd.Flags().BoolVarP(&psAll, "all", "a", false, "Include registry entries whose process is gone")
	rootCmd.AddCommand(psCmd)
}

func runPs(cmd *cobra.Command, args []string) error {
	a := application()

	servers := a.Pool.List()
	if psAll {
		state := a.Registry.Load()
		state.SortByAccess()
		servers = state.Servers
	}

	if len(servers) == 0 {
		logInfo("No sandboxes running. Start one with: forage-pool start <owner>/<branch>")
		return nil
	}

	w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SANDBOX\tPORT\tPID\tLAST USED\tCOMMAND\tSTATUS")
	fmt.Fprintln(w, "-------\t----\t---\t---------\t-------\t------")

	for _, srv := range servers {
		status := health.GetSummary(cmd.Context(), srv, a.IsAlive)
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			srv.Key(), srv.Port, srv.PID, humanize.Time(srv.LastAccessed), srv.Command, formatStatus(status))
	}

	return w.Flush()
}
