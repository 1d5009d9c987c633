package errors

import (
	"errors"
	"fmt"
)

// Exit codes for forage-pool
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitSandboxNotFound  = 2
	ExitPortExhausted    = 3
	ExitSpawnFailed      = 4
	ExitReadinessTimeout = 5
	ExitProcessCrashed   = 6
	ExitConfigError      = 7
	ExitRemoteProvision  = 8
	ExitRemoteCommand    = 9
)

// PoolError is the base error type for forage-pool
type PoolError struct {
	Code    int
	Message string
	Cause   error
}

func (e *PoolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PoolError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *PoolError) ExitCode() int {
	return e.Code
}

// Is reports whether target is a PoolError with the same code, so
// errors.Is(err, errors.New(ExitPortExhausted, "")) matches by category.
func (e *PoolError) Is(target error) bool {
	t, ok := target.(*PoolError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// New creates a new PoolError
func New(code int, message string) *PoolError {
	return &PoolError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a PoolError
func Wrap(code int, message string, cause error) *PoolError {
	return &PoolError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinels for category matching with errors.Is.
var (
	ErrPortExhausted    = New(ExitPortExhausted, "")
	ErrSpawnFailed      = New(ExitSpawnFailed, "")
	ErrReadinessTimeout = New(ExitReadinessTimeout, "")
	ErrProcessCrashed   = New(ExitProcessCrashed, "")
	ErrRemoteProvision  = New(ExitRemoteProvision, "")
	ErrRemoteCommand    = New(ExitRemoteCommand, "")
	ErrSandboxNotFound  = New(ExitSandboxNotFound, "")
)

// SandboxNotFound returns an error for a key with no live sandbox
func SandboxNotFound(key string) *PoolError {
	return New(ExitSandboxNotFound, fmt.Sprintf("sandbox not found: %s", key))
}

// PortExhausted returns an error for a fully occupied port range
func PortExhausted(from, to int) *PoolError {
	return New(ExitPortExhausted, fmt.Sprintf("no available ports in range %d-%d", from, to))
}

// SpawnFailed returns an error for a process that could not be started
func SpawnFailed(command string, cause error) *PoolError {
	return Wrap(ExitSpawnFailed, fmt.Sprintf("failed to spawn %q", command), cause)
}

// ReadinessTimeout returns an error for a dev server that never answered
func ReadinessTimeout(port, attempts int) *PoolError {
	return New(ExitReadinessTimeout, fmt.Sprintf("port %d not ready after %d attempts", port, attempts))
}

// ProcessCrashed returns an error for a recorded pid that is no longer alive
func ProcessCrashed(key string, pid int) *PoolError {
	return New(ExitProcessCrashed, fmt.Sprintf("sandbox %s: process %d is not running", key, pid))
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *PoolError {
	return Wrap(ExitConfigError, message, cause)
}

// RemoteProvisionFailed returns an error for app, address or machine provisioning
func RemoteProvisionFailed(op string, cause error) *PoolError {
	return Wrap(ExitRemoteProvision, fmt.Sprintf("remote %s failed", op), cause)
}

// RemoteCommandFailed returns an error describing a failed remote command
func RemoteCommandFailed(exitCode int, stderr string) *PoolError {
	if stderr != "" {
		return New(ExitRemoteCommand, fmt.Sprintf("command exited with code %d: %s", exitCode, stderr))
	}
	return New(ExitRemoteCommand, fmt.Sprintf("command exited with code %d", exitCode))
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *PoolError {
	return New(ExitGeneralError, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var poolErr *PoolError
	if errors.As(err, &poolErr) {
		return poolErr.ExitCode()
	}
	return ExitGeneralError
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join is errors.Join, re-exported so callers can keep a single import.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
