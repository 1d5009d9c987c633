package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
)

var statusCmd = &cobra.Command{
	Use:   "status <owner>/<branch>",
	Short: "Show detailed status of a sandbox",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	k, err := keyArgs(args)
	if err != nil {
		return err
	}
	srv, err := findServer(k)
	if err != nil {
		return err
	}

	a := application()
	result := health.Check(cmd.Context(), srv, a.IsAlive)
	w := out(cmd)

	fmt.Fprintf(w, "Sandbox: %s\n", srv.Key())
	fmt.Fprintf(w, "State: %s\n", srv.State)
	fmt.Fprintf(w, "Port: %d\n", srv.Port)
	fmt.Fprintf(w, "PID: %d\n", srv.PID)
	fmt.Fprintf(w, "Command: %s\n", srv.Command)
	if srv.Cwd != "" {
		fmt.Fprintf(w, "Directory: %s\n", srv.Cwd)
	}
	fmt.Fprintf(w, "Started: %s\n", humanize.Time(srv.StartedAt))
	fmt.Fprintf(w, "Last accessed: %s\n", humanize.Time(srv.LastAccessed))
	fmt.Fprintf(w, "URL: %s\n", health.URL(srv.Port))
	fmt.Fprintf(w, "Log: %s\n", a.Pool.LogPath(k))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Health Checks:")
	fmt.Fprintf(w, "  Process: %s\n", boolStatus(result.ProcessAlive))
	if result.ProcessAlive {
		fmt.Fprintf(w, "  Uptime: %s\n", result.Uptime)
		fmt.Fprintf(w, "  HTTP: %s\n", boolStatus(result.PortReachable))
	}

	return nil
}
