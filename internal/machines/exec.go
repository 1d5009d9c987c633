package machines

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
)

const defaultExecTimeout = 60 * time.Second

type execBody struct {
	Command []string `json:"command"`
	Timeout int      `json:"timeout"`
}

// EnsureStarted starts the machine if it is not running and waits until it
// is.
func (c *Client) EnsureStarted(ctx context.Context, ref Ref) error {
	m, err := c.GetMachine(ctx, ref)
	if err != nil {
		return err
	}
	if m.State == StateStarted {
		return nil
	}
	if err := c.StartMachine(ctx, ref); err != nil {
		return err
	}
	return c.WaitForState(ctx, ref, StateStarted)
}

// Execute runs cmd through /bin/sh on the machine, starting it first if
// needed. A non-zero exit is reported in the result, not as an error. The
// exec request itself is never retried.
func (c *Client) Execute(ctx context.Context, ref Ref, cmd string, timeout time.Duration) (*ExecResult, error) {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	if err := c.EnsureStarted(ctx, ref); err != nil {
		return nil, errors.RemoteProvisionFailed("start machine "+ref.String(), err)
	}

	// Sent once: a failed response may still mean the command ran.
	var res ExecResult
	req := c.api(http.MethodPost, machinePath(ref, "/exec"), execBody{
		Command: []string{"/bin/sh", "-c", cmd},
		Timeout: int(timeout.Seconds()),
	})
	req.timeout = timeout + 10*time.Second
	err := c.do(ctx, req, &res)
	c.metrics.ObserveMachineOp("exec", err)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadFile returns the contents of path on the machine. It succeeds only
// when cat exits 0 and prints something.
func (c *Client) ReadFile(ctx context.Context, ref Ref, p string) FileResult[string] {
	res, err := c.Execute(ctx, ref, "cat "+shellquote.Join(p), 0)
	if err != nil {
		return FileResult[string]{Err: err}
	}
	if err := res.Err(); err != nil {
		return FileResult[string]{Err: err}
	}
	if res.Stdout == "" {
		return FileResult[string]{Err: fmt.Errorf("read %s: no output", p)}
	}
	return FileResult[string]{Value: res.Stdout}
}

// WriteFile writes content to path on the machine, creating parent
// directories. It succeeds only when the command exits 0 with no stderr.
// The value is the number of bytes written.
func (c *Client) WriteFile(ctx context.Context, ref Ref, p string, content []byte) FileResult[int] {
	encoded := base64.StdEncoding.EncodeToString(content)
	cmd := fmt.Sprintf("mkdir -p %s && echo %s | base64 -d > %s",
		shellquote.Join(path.Dir(p)), encoded, shellquote.Join(p))

	res, err := c.Execute(ctx, ref, cmd, 0)
	if err != nil {
		return FileResult[int]{Err: err}
	}
	if err := quietSuccess(res); err != nil {
		return FileResult[int]{Err: fmt.Errorf("write %s: %w", p, err)}
	}
	return FileResult[int]{Value: len(content)}
}

// DeleteFile removes path on the machine. It succeeds only when rm exits 0
// with no stderr.
func (c *Client) DeleteFile(ctx context.Context, ref Ref, p string) FileResult[bool] {
	res, err := c.Execute(ctx, ref, "rm "+shellquote.Join(p), 0)
	if err != nil {
		return FileResult[bool]{Err: err}
	}
	if err := quietSuccess(res); err != nil {
		return FileResult[bool]{Err: fmt.Errorf("delete %s: %w", p, err)}
	}
	return FileResult[bool]{Value: true}
}

func quietSuccess(res *ExecResult) error {
	if err := res.Err(); err != nil {
		return err
	}
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		return errors.RemoteCommandFailed(0, stderr)
	}
	return nil
}
