// Package logging provides logging utilities for forage-pool.
//
// Two categories of output:
//   - Debug logging: structured logs via slog
//   - User output: formatted status lines for CLI users
//
// # Debug Logging
//
//	logging.Debug("spawned dev server", "key", key, "pid", pid)
//	logging.Warn("registry write failed", "path", path, "error", err)
//
// The serve command routes everything through the same logger, so the
// HTTP API, the pool and the remote client share one stream. Use --json
// for machine-readable output.
//
// # User Output
//
//	logging.UserInfo("Starting sandbox %s...", key)
//	logging.UserSuccess("Sandbox %s running on port %d", key, port)
//	logging.UserWarning("Evicted %s to make room", victim)
//	logging.UserError("Failed to start sandbox: %v", err)
//
// UserInfo and UserSuccess write to stdout; UserWarning and UserError to stderr.
package logging
