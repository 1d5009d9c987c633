// Package health provides readiness polling and health checks for sandboxes.
//
// # Readiness
//
// Poll runs a probe a bounded number of times, one interval apart, and
// reports whether it ever succeeded. It knows nothing about what is probed:
//
//	ok := health.Poll(ctx, health.HTTPProbe(client, "http://127.0.0.1:9000/"), time.Second, 60)
//
// The remote machine client uses the same loop to wait for machine states.
//
// # Health Status
//
// Sandbox health is represented by Status:
//
//	StatusHealthy   - Process alive and the port answers HTTP
//	StatusStarting  - Process alive, still in the starting phase
//	StatusUnhealthy - Process alive but the port does not answer
//	StatusStopped   - Process not running
//
// Combined checks:
//
//	result := health.Check(ctx, srv, alive)
//	status := health.GetSummary(ctx, srv, alive)
package health
