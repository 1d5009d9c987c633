package machines

import (
	"context"
	"net/http"
	"strings"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
)

// ProvisionApp ensures the app for kind and owner exists and has a private
// address. An app that already exists counts as success. If the address
// cannot be allocated the returned error is an *AddressError and the app
// is left in place.
func (c *Client) ProvisionApp(ctx context.Context, kind, owner string) (string, error) {
	app := AppName(kind, owner)

	err := c.retry(ctx, "create_app", func() error {
		err := c.do(ctx, c.api(http.MethodPost, "/v1/apps", map[string]any{
			"app_name": app,
			"org_slug": c.cfg.Org,
		}), nil)
		if alreadyExists(err) {
			logging.Debug("app already exists", "app", app)
			return nil
		}
		return err
	})
	if err != nil {
		return "", errors.RemoteProvisionFailed("create app "+app, err)
	}

	ip, err := c.allocatePrivateIP(ctx, app)
	if err != nil {
		return app, &AddressError{App: app, Err: errors.RemoteProvisionFailed("allocate address", err)}
	}
	logging.Info("provisioned app", "app", app, "address", ip.Address)
	return app, nil
}

// DeleteApp deletes app and every machine in it. A missing app is not an
// error.
func (c *Client) DeleteApp(ctx context.Context, app string) error {
	err := c.retry(ctx, "delete_app", func() error {
		err := c.do(ctx, c.api(http.MethodDelete, "/v1/apps/"+app, nil), nil)
		if isStatus(err, http.StatusNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return errors.RemoteProvisionFailed("delete app "+app, err)
	}
	return nil
}

func alreadyExists(err error) bool {
	if isStatus(err, http.StatusConflict) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity {
		return strings.Contains(strings.ToLower(apiErr.Body), "already")
	}
	return false
}
