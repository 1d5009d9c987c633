package machines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/metrics"
)

const requestTimeout = 30 * time.Second

// Client talks to the machines and GraphQL APIs.
type Client struct {
	cfg     config.RemoteConfig
	http    *http.Client
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records operation outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client from cfg.
func New(cfg config.RemoteConfig, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.RetryAttempts < 1 {
		c.cfg.RetryAttempts = 1
	}
	return c
}

// AppName returns the app that holds sandboxes of kind for owner.
func AppName(kind, owner string) string {
	return fmt.Sprintf("app-%s-%s", kind, owner)
}

type request struct {
	method  string
	base    string
	path    string
	query   url.Values
	body    any
	timeout time.Duration
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	if c.cfg.Token == "" {
		return errors.ConfigError("remote API token is not set (FLY_API_TOKEN)", nil)
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = requestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := strings.TrimRight(r.base, "/") + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Method: r.method, Path: r.path, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) api(method, path string, body any) request {
	return request{method: method, base: c.cfg.MachinesURL, path: path, body: body}
}

// retry runs fn with a fixed delay between attempts. Errors that cannot
// succeed on repeat stop the loop immediately.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay.Duration), uint64(c.cfg.RetryAttempts-1)),
		ctx,
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		var poolErr *errors.PoolError
		if errors.As(err, &poolErr) && poolErr.Code == errors.ExitConfigError {
			return backoff.Permanent(err)
		}
		logging.Debug("remote call failed", "op", op, "attempt", attempt, "error", err)
		return err
	}, policy)

	c.metrics.ObserveMachineOp(op, err)
	return err
}

func isStatus(err error, codes ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.Status == code {
			return true
		}
	}
	return false
}
