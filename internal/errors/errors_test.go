package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestPoolError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *PoolError
		wantMsg string
	}{
		{
			name:    "without cause",
			err:     New(ExitGeneralError, "something went wrong"),
			wantMsg: "something went wrong",
		},
		{
			name:    "with cause",
			err:     Wrap(ExitGeneralError, "operation failed", fmt.Errorf("underlying error")),
			wantMsg: "operation failed: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestPoolError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ExitGeneralError, "wrapped", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := New(ExitGeneralError, "no cause")
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")
	tests := []struct {
		name     string
		err      *PoolError
		wantCode int
		wantMsg  string
	}{
		{"sandbox not found", SandboxNotFound("alice/main"), ExitSandboxNotFound, "sandbox not found: alice/main"},
		{"port exhausted", PortExhausted(9000, 9009), ExitPortExhausted, "no available ports in range 9000-9009"},
		{"spawn failed", SpawnFailed("npm run dev", cause), ExitSpawnFailed, `failed to spawn "npm run dev": boom`},
		{"readiness timeout", ReadinessTimeout(9001, 60), ExitReadinessTimeout, "port 9001 not ready after 60 attempts"},
		{"process crashed", ProcessCrashed("alice/main", 42), ExitProcessCrashed, "sandbox alice/main: process 42 is not running"},
		{"config", ConfigError("bad config", cause), ExitConfigError, "bad config: boom"},
		{"remote provision", RemoteProvisionFailed("machine create", cause), ExitRemoteProvision, "remote machine create failed: boom"},
		{"remote command", RemoteCommandFailed(2, "no such file"), ExitRemoteCommand, "command exited with code 2: no such file"},
		{"remote command no stderr", RemoteCommandFailed(1, ""), ExitRemoteCommand, "command exited with code 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.wantCode)
			}
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	err := fmt.Errorf("start: %w", ReadinessTimeout(9003, 60))

	if !errors.Is(err, ErrReadinessTimeout) {
		t.Error("errors.Is should match ErrReadinessTimeout by code")
	}
	if errors.Is(err, ErrPortExhausted) {
		t.Error("errors.Is should not match a different code")
	}

	spawn := SpawnFailed("npm", fmt.Errorf("exec: not found"))
	if !Is(spawn, ErrSpawnFailed) {
		t.Error("Is should match ErrSpawnFailed")
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"PoolError", SandboxNotFound("a/b"), ExitSandboxNotFound},
		{"wrapped PoolError", fmt.Errorf("outer: %w", PortExhausted(1, 2)), ExitPortExhausted},
		{"regular error", fmt.Errorf("some error"), ExitGeneralError},
		{"nil error", nil, ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.wantCode {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", SandboxNotFound("a/b"))

	var target *PoolError
	if !As(wrapped, &target) {
		t.Fatal("As() should return true for wrapped PoolError")
	}
	if target.Code != ExitSandboxNotFound {
		t.Errorf("target.Code = %d, want %d", target.Code, ExitSandboxNotFound)
	}

	if As(fmt.Errorf("regular error"), &target) {
		t.Error("As() should return false for non-PoolError")
	}
}

func TestErrorChaining(t *testing.T) {
	root := fmt.Errorf("root cause")
	middle := Wrap(ExitConfigError, "config error", root)
	outer := fmt.Errorf("operation failed: %w", middle)

	if !errors.Is(outer, root) {
		t.Error("errors.Is should find root cause")
	}

	var poolErr *PoolError
	if !errors.As(outer, &poolErr) {
		t.Fatal("errors.As should find PoolError")
	}
	if poolErr.Code != ExitConfigError {
		t.Errorf("Code = %d, want %d", poolErr.Code, ExitConfigError)
	}
}
