package machines

import (
	"fmt"
	"strings"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
)

// State is a machine lifecycle state. Values not listed here are passed
// through from the provider unchanged.
type State string

const (
	StateCreated   State = "created"
	StateStarting  State = "starting"
	StateStarted   State = "started"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateDestroyed State = "destroyed"
)

// Guest is the machine size.
type Guest struct {
	CPUKind  string `json:"cpu_kind,omitempty"`
	CPUs     int    `json:"cpus,omitempty"`
	MemoryMB int    `json:"memory_mb,omitempty"`
}

// MachineConfig is the part of the machine spec this client sets.
type MachineConfig struct {
	Image string            `json:"image,omitempty"`
	Guest Guest             `json:"guest"`
	Env   map[string]string `json:"env,omitempty"`
}

// Machine is a remote VM.
type Machine struct {
	App       string        `json:"-"`
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	State     State         `json:"state"`
	Region    string        `json:"region"`
	PrivateIP string        `json:"private_ip,omitempty"`
	Config    MachineConfig `json:"config"`
	CreatedAt time.Time     `json:"created_at"`
}

// Ref returns the reference used to address the machine.
func (m *Machine) Ref() Ref {
	return Ref{App: m.App, ID: m.ID}
}

// Ref addresses one machine.
type Ref struct {
	App string
	ID  string
}

func (r Ref) String() string {
	return r.App + "/" + r.ID
}

// ParseRef parses the app/id form.
func ParseRef(s string) (Ref, error) {
	app, id, ok := strings.Cut(s, "/")
	if !ok || app == "" || id == "" {
		return Ref{}, errors.ValidationError(fmt.Sprintf("invalid machine reference %q: expected app/id", s))
	}
	return Ref{App: app, ID: id}, nil
}

// CreateRequest describes a machine to create.
type CreateRequest struct {
	Type  string
	Owner string

	// Guest and Image override the configured defaults when set.
	Guest Guest
	Image string

	// Region is a configured group name, a single region code, or empty
	// for every configured region.
	Region string
	Env    map[string]string
}

// ExecResult is the outcome of a remote command.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Err returns a RemoteCommandFailed error for a non-zero exit, or nil.
func (r *ExecResult) Err() error {
	if r.ExitCode == 0 {
		return nil
	}
	return errors.RemoteCommandFailed(r.ExitCode, strings.TrimSpace(r.Stderr))
}

// FileResult carries the outcome of a file helper: Value is meaningful
// only when Err is nil.
type FileResult[T any] struct {
	Value T
	Err   error
}

// OK reports whether the operation succeeded.
func (r FileResult[T]) OK() bool {
	return r.Err == nil
}

// RegionFailure is why machine creation failed in one region.
type RegionFailure struct {
	Region string
	Err    error
}

// CreateError is returned when machine creation failed in every
// candidate region.
type CreateError struct {
	App      string
	Failures []RegionFailure
}

func (e *CreateError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("no candidate regions to create a machine in app %s", e.App)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Region, f.Err))
	}
	return fmt.Sprintf("machine creation failed in app %s in every region (%s)", e.App, strings.Join(parts, "; "))
}

// Unwrap exposes each region's cause to errors.Is and errors.As.
func (e *CreateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, errors.ErrRemoteProvision)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// AddressError is returned by ProvisionApp when the app exists but no
// private address could be allocated. The caller decides whether to delete
// the app.
type AddressError struct {
	App string
	Err error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("app %s created but address allocation failed: %v", e.App, e.Err)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: API error %d: %s", e.Method, e.Path, e.Status, strings.TrimSpace(e.Body))
}

// retryable reports whether repeating the request could succeed.
func (e *APIError) retryable() bool {
	return e.Status >= 500 || e.Status == 408 || e.Status == 429
}
