package cmd

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/proxy"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/server"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/shutdown"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pool HTTP API and preview proxy",
	Long: `Runs the pool in the foreground and serves:

  /api/sandboxes/...           start, query, touch and stop sandboxes
  /preview/<owner>/<branch>/   reverse proxy that starts and touches on demand
  /healthz, /metrics           liveness and Prometheus metrics

On SIGINT or SIGTERM the API stops accepting requests, then every
sandbox is stopped and the registry emptied before exiting.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveListen          string
	serveRateLimit       int
	serveRateWindow      time.Duration
	serveShutdownTimeout time.Duration
	serveKeep            bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (default server.listen)")
	serveCmd.Flags().IntVar(&serveRateLimit, "rate-limit", 0, "Max preview requests per window per sandbox (0 = unlimited)")
	serveCmd.Flags().DurationVar(&serveRateWindow, "rate-window", time.Minute, "Preview rate limit window")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", shutdown.DefaultTimeout, "Time allowed for shutdown hooks")
	serveCmd.Flags().BoolVar(&serveKeep, "keep", false, "Leave sandboxes running on exit")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a := application()

	addr := serveListen
	if addr == "" {
		addr = a.Config.Server.Listen
	}

	if dead := a.Pool.Reconcile(false); len(dead) > 0 {
		logging.Info("removed dead registry entries", "count", len(dead))
	}

	preview, err := proxy.New(&proxy.Config{
		Pool:              a.Pool,
		RateLimitRequests: serveRateLimit,
		RateLimitWindow:   serveRateWindow,
		Logger:            logging.With("component", "proxy"),
	})
	if err != nil {
		return err
	}

	srv := server.New(addr, a.Pool,
		server.WithMetrics(a.Metrics),
		server.WithPreview(preview),
	)

	coord := shutdown.New(serveShutdownTimeout)
	registerShutdown(coord, a, srv.Shutdown, preview, serveKeep, serveShutdownTimeout)

	ctx, stop := shutdown.Notify(cmd.Context())
	defer stop()

	mon := newMonitor(0)
	go func() {
		_ = mon.Run(ctx)
	}()

	logInfo("Serving on %s (ports %d-%d, max %d sandboxes)",
		addr, a.Config.Pool.PortRange.From, a.Config.Pool.PortRange.To, a.Config.Pool.MaxSandboxes)

	return coord.Run(ctx, srv.Serve)
}

// registerShutdown installs the serve teardown hooks. Readiness polls are
// cancelled first so in-flight starts return and the HTTP drain is not held
// by them. Stopping sandboxes gets a budget of its own so every sandbox
// keeps its grace window whatever the earlier hooks used.
func registerShutdown(coord *shutdown.Coordinator, a *app.App, httpShutdown func(context.Context) error, preview io.Closer, keep bool, stopTimeout time.Duration) {
	coord.Register("readiness", func(context.Context) error {
		a.Pool.Shutdown()
		return nil
	})
	coord.Register("http", httpShutdown)
	if preview != nil {
		coord.Register("preview", func(context.Context) error { return preview.Close() })
	}
	if keep {
		return
	}
	coord.Register("pool", func(ctx context.Context) error {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		return a.Pool.StopAll(stopCtx)
	})
}
