// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package control

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// Client talks to a control Server over its Unix socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 2 * time.Second,
		},
	}
}

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", &out)
	return out, err
}

// Status queries GET /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", &out)
	return out, err
}

// Shutdown requests a delayed shutdown via POST /shutdown.
func (c *Client) Shutdown(ctx context.Context) (ShutdownResponse, error) {
	var out ShutdownResponse
	err := c.do(ctx, http.MethodPost, "/shutdown", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, "http://localhost"+path, nil)
	if err != nil {
		return oops.Code("CONTROL_REQUEST_FAILED").With("path", path).Wrap(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return oops.Code("CONTROL_UNREACHABLE").
			With("socket", c.socketPath).
			Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.Code("CONTROL_DECODE_FAILED").
			With("path", path).
			With("status", resp.StatusCode).
			Wrap(err)
	}
	return nil
}
