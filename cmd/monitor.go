package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/monitor"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/shutdown"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor sandbox health in the foreground",
	Long: `Periodically probes every registry entry and records a health event in
the audit log whenever a sandbox changes status. Runs until interrupted.

Dead entries are reported but never removed; use gc for that.
serve runs the same monitor in the background.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var monitorInterval time.Duration

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "Health check interval (default pool.monitor_interval)")
	rootCmd.AddCommand(monitorCmd)
}

func newMonitor(interval time.Duration) *monitor.Monitor {
	a := application()
	if interval <= 0 {
		interval = a.Config.Pool.MonitorInterval.Duration
	}
	return monitor.New(interval, a.Registry, a.IsAlive,
		monitor.WithAuditLogger(a.Audit),
		monitor.WithMetrics(a.Metrics),
	)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	mon := newMonitor(monitorInterval)

	logInfo("Starting health monitor")

	ctx, stop := shutdown.Notify(cmd.Context())
	defer stop()

	err := mon.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logInfo("Monitor stopped")
		return nil
	}
	return err
}
