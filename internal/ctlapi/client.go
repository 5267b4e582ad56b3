package ctlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
)

// Client is a thin HTTP-over-Unix-socket client for the control API,
// used by cmd/tetherd's enable/disable/status subcommands.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient returns a Client bound to socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return net.Dial("unix", socketPath)
				},
			},
		},
	}
}

func (c *Client) url(path string) string {
	return "http://localhost" + path
}

// Status fetches the daemon's current status.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.http.Get(c.url("/v1/status"))
	if err != nil {
		return nil, fmt.Errorf("ctlapi: daemon not reachable at %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("ctlapi: decode status: %w", err)
	}
	return &status, nil
}

// Enable requests the daemon enable mode for upstream.
func (c *Client) Enable(mode, upstream string) (bool, error) {
	body, _ := json.Marshal(enableRequest{Mode: mode, Upstream: upstream})
	resp, err := c.http.Post(c.url("/v1/enable"), "application/json", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("ctlapi: daemon not reachable at %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return false, fmt.Errorf("ctlapi: enable: %s", errResp.Error)
	}
	var out map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("ctlapi: decode enable response: %w", err)
	}
	return out["started"], nil
}

// Disable requests the daemon disable mode.
func (c *Client) Disable(mode string) error {
	body, _ := json.Marshal(disableRequest{Mode: mode})
	resp, err := c.http.Post(c.url("/v1/disable"), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ctlapi: daemon not reachable at %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("ctlapi: disable: %s", errResp.Error)
	}
	return nil
}
