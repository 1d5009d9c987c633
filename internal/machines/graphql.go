package machines

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const allocateIPMutation = `mutation($input: AllocateIPAddressInput!) {
  allocateIpAddress(input: $input) {
    ipAddress { id address type }
  }
}`

const setSecretsMutation = `mutation($input: SetSecretsInput!) {
  setSecrets(input: $input) {
    release { id version }
  }
}`

const unsetSecretsMutation = `mutation($input: UnsetSecretsInput!) {
  unsetSecrets(input: $input) {
    release { id version }
  }
}`

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// GraphQLError lists the errors returned in a GraphQL response body.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

func (c *Client) graphql(ctx context.Context, query string, vars map[string]any, out any) error {
	var resp gqlResponse
	req := request{
		method: http.MethodPost,
		base:   c.cfg.GraphQLURL,
		body:   gqlRequest{Query: query, Variables: vars},
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return &GraphQLError{Messages: msgs}
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}
	return nil
}

// IPAddress is an allocated app address.
type IPAddress struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Type    string `json:"type"`
}

func (c *Client) allocatePrivateIP(ctx context.Context, app string) (*IPAddress, error) {
	var out struct {
		AllocateIPAddress struct {
			IPAddress IPAddress `json:"ipAddress"`
		} `json:"allocateIpAddress"`
	}
	err := c.retry(ctx, "allocate_ip", func() error {
		return c.graphql(ctx, allocateIPMutation, map[string]any{
			"input": map[string]any{"appId": app, "type": "private_v6"},
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out.AllocateIPAddress.IPAddress, nil
}

type secretInput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetSecrets adds or updates secrets on app, leaving other secrets alone.
func (c *Client) SetSecrets(ctx context.Context, app string, secrets map[string]string) error {
	if len(secrets) == 0 {
		return nil
	}
	keys := make([]string, 0, len(secrets))
	for k := range secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	input := make([]secretInput, 0, len(keys))
	for _, k := range keys {
		input = append(input, secretInput{Key: k, Value: secrets[k]})
	}

	return c.retry(ctx, "set_secrets", func() error {
		return c.graphql(ctx, setSecretsMutation, map[string]any{
			"input": map[string]any{"appId": app, "secrets": input, "replaceAll": false},
		}, nil)
	})
}

// UnsetSecrets removes the named secrets from app.
func (c *Client) UnsetSecrets(ctx context.Context, app string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.retry(ctx, "unset_secrets", func() error {
		return c.graphql(ctx, unsetSecretsMutation, map[string]any{
			"input": map[string]any{"appId": app, "keys": keys},
		}, nil)
	})
}
