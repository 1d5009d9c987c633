// Package errors provides typed errors with exit codes for forage-pool.
//
// # Error Types
//
// PoolError wraps an error with an exit code:
//
//	type PoolError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
//	ExitSuccess           = 0  // Success
//	ExitGeneralError      = 1  // General/unknown errors
//	ExitSandboxNotFound   = 2  // No sandbox for the key
//	ExitPortExhausted     = 3  // Port range fully occupied
//	ExitSpawnFailed       = 4  // Process did not start
//	ExitReadinessTimeout  = 5  // Dev server never became ready
//	ExitProcessCrashed    = 6  // Recorded pid is dead
//	ExitConfigError       = 7  // Configuration error
//	ExitRemoteProvision   = 8  // App, address or machine provisioning failed
//	ExitRemoteCommand     = 9  // Remote command returned a failure
//
// # Propagation
//
// The pool converts PortExhausted and ReadinessTimeout into a status value
// on its Result rather than returning them; they are still PoolErrors so
// callers can inspect the code. Remote provisioning failures are returned
// as errors. Remote command failures travel inside result values.
//
// Use GetExitCode to map an error chain to a process exit status:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
