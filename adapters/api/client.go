// Package api is the HTTP client for the authentication service endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/layer-3/authgate/core"
	"github.com/layer-3/authgate/ports"
)

// Endpoint paths relative to the base URL.
const (
	ChallengePath    = "/auth/challenge"
	AuthenticatePath = "/auth/authenticate"
	LogoutPath       = "/auth/logout"
	CurrentUserPath  = "/users/me"
)

// StatusError is returned when an endpoint answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Code, e.Message)
}

// Client implements ports.AuthAPI over HTTP
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL. When httpClient is
// nil http.DefaultClient is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

var _ ports.AuthAPI = (*Client)(nil)

// Challenge requests a single-use challenge for address
func (c *Client) Challenge(ctx context.Context, address string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	req := map[string]string{"address": address}
	if err := c.do(ctx, http.MethodPost, ChallengePath, "", req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%s: empty challenge", ChallengePath)
	}
	return resp.Token, nil
}

// Authenticate exchanges a signed challenge for a session token
func (c *Client) Authenticate(ctx context.Context, signature, address string) (string, error) {
	var resp struct {
		JWT string `json:"jwt"`
	}
	req := map[string]string{"signature": signature, "address": address}
	if err := c.do(ctx, http.MethodPost, AuthenticatePath, "", req, &resp); err != nil {
		return "", err
	}
	if resp.JWT == "" {
		return "", fmt.Errorf("%s: empty session token", AuthenticatePath)
	}
	return resp.JWT, nil
}

// CurrentUser returns the identity the session token belongs to
func (c *Client) CurrentUser(ctx context.Context, token string) (core.Identity, error) {
	var identity core.Identity
	if err := c.do(ctx, http.MethodGet, CurrentUserPath, token, nil, &identity); err != nil {
		return core.Identity{}, err
	}
	return identity, nil
}

// Logout asks the service to revoke the session token
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, LogoutPath, token, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ports.ErrTransport, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&e)
		return &StatusError{Endpoint: path, Code: res.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
