// Package supervisor spawns, probes and terminates sandbox dev servers.
//
// Each dev server runs in its own process group so that terminating it
// also reaches the processes it forks (npm, node, watchers). Output is
// appended to a per-sandbox log file under the state directory.
//
// # Termination
//
// Terminate sends SIGTERM to the group, waits for the grace period and
// then sends SIGKILL:
//
//	sup := supervisor.New(paths.LogsDir, supervisor.WithGracePeriod(2*time.Second))
//	pid, err := sup.Spawn(ctx, spec)
//	...
//	err = sup.Terminate(ctx, pid)
//
// # Launch Profiles
//
// DetectLaunchProfile decides which directory and command a branch is
// started with. A forage-pool.yaml file in the branch root wins, then
// apps/web, then apps/server, then the branch root itself.
package supervisor
