// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package remedy talks to the credential-issuing remediation backend. The
// backend follows the Cloudflare v4 envelope: every response carries a
// success flag, an error list, and a result payload.
package remedy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/apisentry/apisentry/internal/logging"
)

// Backend is the capability the action executor needs from a remediation
// service. Implementations must be safe for concurrent use.
type Backend interface {
	// VerifyToken checks that the configured credential is valid and active.
	VerifyToken(ctx context.Context) error
	// ListPermissionGroups returns the catalog of grantable permissions,
	// keyed by human-readable name.
	ListPermissionGroups(ctx context.Context) (map[string]PermissionGroup, error)
	// CreateScopedToken provisions a replacement credential limited to the
	// given permission groups and returns it, secret value included.
	CreateScopedToken(ctx context.Context, name string, groups []PermissionGroup) (*IssuedToken, error)
}

// PermissionGroup is one grantable permission in the backend's catalog.
type PermissionGroup struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes,omitempty"`
}

// IssuedToken is a freshly provisioned credential.
type IssuedToken struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client implements Backend over HTTP.
type Client struct {
	baseURL   string
	apiToken  string
	accountID string
	client    *http.Client
}

// NewClient creates a remediation client. An empty baseURL yields a client
// whose calls all fail with ErrUnconfigured; the executor downgrades those to
// documented outcomes.
func NewClient(baseURL, apiToken, accountID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiToken:  apiToken,
		accountID: accountID,
		client:    &http.Client{Timeout: timeout},
	}
}

// ErrUnconfigured is returned when no remediation backend is configured.
var ErrUnconfigured = fmt.Errorf("remedy: backend not configured")

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

// VerifyToken implements Backend.
func (c *Client) VerifyToken(ctx context.Context) error {
	var result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/tokens/verify", nil, &result); err != nil {
		return err
	}
	if result.Status != "active" {
		return fmt.Errorf("remedy: token status is %q, expected active", result.Status)
	}
	return nil
}

// ListPermissionGroups implements Backend.
func (c *Client) ListPermissionGroups(ctx context.Context) (map[string]PermissionGroup, error) {
	var result []PermissionGroup
	if err := c.do(ctx, http.MethodGet, "/user/tokens/permission_groups", nil, &result); err != nil {
		return nil, err
	}

	groups := make(map[string]PermissionGroup, len(result))
	for _, g := range result {
		groups[g.Name] = g
	}
	return groups, nil
}

// CreateScopedToken implements Backend.
func (c *Client) CreateScopedToken(ctx context.Context, name string, groups []PermissionGroup) (*IssuedToken, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("remedy: no permission groups to scope token to")
	}

	type permRef struct {
		ID string `json:"id"`
	}
	refs := make([]permRef, len(groups))
	for i, g := range groups {
		refs[i] = permRef{ID: g.ID}
	}

	payload := map[string]any{
		"name": name,
		"policies": []map[string]any{
			{
				"effect":            "allow",
				"permission_groups": refs,
				"resources": map[string]string{
					"com.cloudflare.api.account." + c.accountID: "*",
				},
			},
		},
	}

	var result IssuedToken
	if err := c.do(ctx, http.MethodPost, "/user/tokens", payload, &result); err != nil {
		return nil, err
	}
	if result.Name == "" {
		result.Name = name
	}

	log.Infof("remedy: issued replacement token %s (%s)", result.Name, logging.RedactSecret(result.Value))
	return &result, nil
}

// do performs one backend call and decodes the enveloped result into out.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	if c.baseURL == "" {
		return ErrUnconfigured
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("remedy: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("remedy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("User-Agent", "apisentry-remedy")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remedy: %s %s: %w", method, path, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("remedy: close response body error: %v", errClose)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("remedy: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("remedy: %s %s returned status %d with unparseable body", method, path, resp.StatusCode)
	}
	if !env.Success {
		if len(env.Errors) > 0 {
			return fmt.Errorf("remedy: %s %s: error %d: %s", method, path, env.Errors[0].Code, env.Errors[0].Message)
		}
		return fmt.Errorf("remedy: %s %s failed with status %d", method, path, resp.StatusCode)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("remedy: decode result: %w", err)
		}
	}
	return nil
}
