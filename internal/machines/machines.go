package machines

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
)

func machinePath(ref Ref, suffix string) string {
	return "/v1/apps/" + ref.App + "/machines/" + ref.ID + suffix
}

type createBody struct {
	Name   string       `json:"name"`
	Region string       `json:"region"`
	Config createConfig `json:"config"`
}

type createConfig struct {
	MachineConfig
	AutoDestroy bool          `json:"auto_destroy"`
	Restart     restartPolicy `json:"restart"`
}

type restartPolicy struct {
	Policy string `json:"policy"`
}

// CreateMachine creates a machine in the app for req.Type and req.Owner,
// trying each candidate region until one yields a started machine.
func (c *Client) CreateMachine(ctx context.Context, req CreateRequest) (*Machine, error) {
	app := AppName(req.Type, req.Owner)
	cfg := MachineConfig{
		Image: c.cfg.Image,
		Guest: Guest{
			CPUKind:  c.cfg.Guest.CPUKind,
			CPUs:     c.cfg.Guest.CPUs,
			MemoryMB: c.cfg.Guest.MemoryMB,
		},
		Env: req.Env,
	}
	if req.Image != "" {
		cfg.Image = req.Image
	}
	if req.Guest != (Guest{}) {
		cfg.Guest = req.Guest
	}

	createErr := &CreateError{App: app}
	for _, region := range CandidateRegions(c.cfg.Regions, req.Region) {
		m, err := c.createIn(ctx, app, region, req.Type, cfg)
		if err == nil {
			return m, nil
		}
		logging.Warn("machine creation failed, trying next region", "app", app, "region", region, "error", err)
		createErr.Failures = append(createErr.Failures, RegionFailure{Region: region, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return nil, createErr
}

func (c *Client) createIn(ctx context.Context, app, region, kind string, cfg MachineConfig) (*Machine, error) {
	body := createBody{
		Name:   fmt.Sprintf("%s-%s", kind, uuid.New().String()[:8]),
		Region: region,
		Config: createConfig{
			MachineConfig: cfg,
			Restart:       restartPolicy{Policy: "no"},
		},
	}

	var m Machine
	err := c.retry(ctx, "create_machine", func() error {
		return c.do(ctx, c.api(http.MethodPost, "/v1/apps/"+app+"/machines", body), &m)
	})
	if err != nil {
		return nil, errors.RemoteProvisionFailed("create machine in "+region, err)
	}
	m.App = app

	if err := c.WaitForState(ctx, m.Ref(), StateStarted); err != nil {
		logging.Warn("machine never started, destroying", "machine", m.Ref().String(), "region", region, "error", err)
		if derr := c.DestroyMachine(context.WithoutCancel(ctx), m.Ref()); derr != nil {
			logging.Warn("failed to destroy unstarted machine", "machine", m.Ref().String(), "error", derr)
		}
		return nil, errors.RemoteProvisionFailed("start machine in "+region, err)
	}

	m.State = StateStarted
	logging.Info("machine started", "machine", m.Ref().String(), "region", region)
	return &m, nil
}

// GetMachine fetches the current machine record.
func (c *Client) GetMachine(ctx context.Context, ref Ref) (*Machine, error) {
	var m Machine
	err := c.retry(ctx, "get_machine", func() error {
		return c.do(ctx, c.api(http.MethodGet, machinePath(ref, ""), nil), &m)
	})
	if err != nil {
		return nil, err
	}
	m.App = ref.App
	return &m, nil
}

// ListMachines returns every machine in app.
func (c *Client) ListMachines(ctx context.Context, app string) ([]Machine, error) {
	var ms []Machine
	err := c.retry(ctx, "list_machines", func() error {
		return c.do(ctx, c.api(http.MethodGet, "/v1/apps/"+app+"/machines", nil), &ms)
	})
	if err != nil {
		return nil, err
	}
	for i := range ms {
		ms[i].App = app
	}
	return ms, nil
}

// StartMachine asks the provider to start a stopped machine.
func (c *Client) StartMachine(ctx context.Context, ref Ref) error {
	return c.retry(ctx, "start_machine", func() error {
		return c.do(ctx, c.api(http.MethodPost, machinePath(ref, "/start"), nil), nil)
	})
}

// DestroyMachine force-destroys a machine. A machine that is already gone
// is not an error.
func (c *Client) DestroyMachine(ctx context.Context, ref Ref) error {
	return c.retry(ctx, "destroy_machine", func() error {
		req := c.api(http.MethodDelete, machinePath(ref, ""), nil)
		req.query = url.Values{"force": {"true"}}
		err := c.do(ctx, req, nil)
		if isStatus(err, http.StatusNotFound) {
			return nil
		}
		return err
	})
}

// WaitForState blocks until the machine reports state, polling the
// provider's wait endpoint up to the configured number of times.
func (c *Client) WaitForState(ctx context.Context, ref Ref, state State) error {
	timeout := c.cfg.WaitTimeout.Duration
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	attempts := c.cfg.WaitAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	probe := func(ctx context.Context) bool {
		req := c.api(http.MethodGet, machinePath(ref, "/wait"), nil)
		req.query = url.Values{
			"state":   {string(state)},
			"timeout": {strconv.Itoa(int(timeout.Seconds()))},
		}
		req.timeout = timeout + 10*time.Second
		last = c.do(ctx, req, nil)
		if last != nil {
			logging.Debug("machine not yet in state", "machine", ref.String(), "state", state, "error", last)
		}
		return last == nil
	}

	ok := health.Poll(ctx, probe, c.cfg.RetryDelay.Duration, attempts)
	c.metrics.ObserveMachineOp("wait_"+string(state), last)
	if ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("machine %s did not reach %s after %d attempts: %w", ref, state, attempts, last)
}
