package health

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

// Status represents the health status of a sandbox
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusStarting  Status = "starting"
	StatusUnhealthy Status = "unhealthy"
	StatusStopped   Status = "stopped"
)

// CheckResult contains the results of health checks
type CheckResult struct {
	ProcessAlive  bool
	PortReachable bool
	Uptime        string
}

// URL returns the local address a sandbox listens on.
func URL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/", port)
}

// Check performs all health checks for a sandbox.
// alive reports process liveness; a nil alive treats every process as dead.
func Check(ctx context.Context, srv registry.Server, alive func(pid int) bool) *CheckResult {
	result := &CheckResult{}

	if alive != nil {
		result.ProcessAlive = alive(srv.PID)
	}
	if !result.ProcessAlive {
		return result
	}

	result.Uptime = GetUptime(srv.StartedAt)
	result.PortReachable = HTTPProbe(nil, URL(srv.Port))(ctx)
	return result
}

// GetSummary returns a summary health status.
func GetSummary(ctx context.Context, srv registry.Server, alive func(pid int) bool) Status {
	result := Check(ctx, srv, alive)
	switch {
	case !result.ProcessAlive:
		return StatusStopped
	case result.PortReachable:
		return StatusHealthy
	case srv.State == registry.PhaseStarting:
		return StatusStarting
	default:
		return StatusUnhealthy
	}
}

// GetUptime returns the time since started in human-readable format.
func GetUptime(started time.Time) string {
	if started.IsZero() {
		return "unknown"
	}
	return formatDuration(time.Since(started))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
