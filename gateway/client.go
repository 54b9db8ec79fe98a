// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/chatsync/lib/clock"
	"github.com/bureau-foundation/chatsync/lib/netutil"
)

// Session pairing statuses as reported by the gateway.
const (
	StatusConnecting = "connecting"
	StatusConnected  = "connected"
)

// SessionInfo describes one gateway session.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("gateway: %s: %s", http.StatusText(e.StatusCode), e.Message)
}

// IsNotFound reports whether err is a gateway 404. Session status
// polls treat it as "not paired yet", not a failure.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ClientConfig configures a Client. BaseURL is required.
type ClientConfig struct {
	// BaseURL is the gateway root, e.g. "http://localhost:8899".
	BaseURL string

	// HTTPClient overrides the transport. Nil uses a client with a
	// 30 second timeout.
	HTTPClient *http.Client

	// Clock drives AwaitConnected polling. Nil uses the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Client talks to the gateway session API.
type Client struct {
	baseURL string
	http    *http.Client
	clock   clock.Clock
	logger  *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("gateway: BaseURL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		http:    httpClient,
		clock:   c,
		logger:  logger,
	}, nil
}

// CreateSession asks the gateway to start a backend session under the
// given ID. Creating an existing session is not an error; the gateway
// returns its current state.
func (c *Client) CreateSession(ctx context.Context, sessionID string) (SessionInfo, error) {
	body, err := json.Marshal(map[string]string{"instanceId": sessionID})
	if err != nil {
		return SessionInfo{}, fmt.Errorf("gateway: encoding request: %w", err)
	}

	var info SessionInfo
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/create", body, &info); err != nil {
		return SessionInfo{}, err
	}
	c.logger.Info("session created", "session_id", sessionID, "status", info.Status)
	return info, nil
}

// Session returns the current state of one session. A 404 means the
// gateway does not know the session (yet).
func (c *Client) Session(ctx context.Context, sessionID string) (SessionInfo, error) {
	var info SessionInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &info); err != nil {
		return SessionInfo{}, err
	}
	return info, nil
}

// Sessions lists every session the gateway knows.
func (c *Client) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var out struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// DeleteSession tears a session down on the gateway.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil); err != nil {
		return err
	}
	c.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// QRCode returns the pairing QR payload for an unpaired session.
func (c *Client) QRCode(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		QRCode string `json:"qrcode"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/qrcode", nil, &out); err != nil {
		return "", err
	}
	return out.QRCode, nil
}

// QRCodeImage returns the pairing QR code rendered as a PNG.
func (c *Client) QRCodeImage(ctx context.Context, sessionID string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/qrcode/image", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	image, err := netutil.ReadResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: reading QR image: %w", err)
	}
	return image, nil
}

// AwaitConnected polls the session until the gateway reports it
// connected, checking every interval. A 404 or "connecting" status
// means keep waiting; any other error aborts.
func (c *Client) AwaitConnected(ctx context.Context, sessionID string, interval time.Duration) error {
	for {
		info, err := c.Session(ctx, sessionID)
		switch {
		case IsNotFound(err):
			// Session not registered yet; keep polling.
		case err != nil:
			return err
		case info.Status == StatusConnected:
			return nil
		}
		c.logger.Debug("waiting for session pairing",
			"session_id", sessionID, "status", info.Status)

		select {
		case <-c.clock.After(interval):
		case <-ctx.Done():
			return fmt.Errorf("gateway: awaiting session %s: %w", sessionID, ctx.Err())
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// doJSON performs a request and decodes a JSON response into v (nil v
// discards the body).
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, v any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := netutil.DecodeResponse(resp.Body, v); err != nil {
		return fmt.Errorf("gateway: decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// checkStatus converts a non-2xx response into an *APIError, using
// the conventional {"error": "..."} body when present.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := netutil.ReadResponse(resp.Body)
	if err == nil {
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
	}
	return apiErr
}
