// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/chatsync/lib/netutil"
)

// DefaultReportLimit is how many parked messages a report includes.
const DefaultReportLimit = 1000

// Message is one parked delivery failure.
type Message struct {
	ID                 string          `json:"id"`
	InstanceID         string          `json:"instanceId,omitempty"`
	OriginalRoutingKey string          `json:"originalRoutingKey"`
	RetryCount         int             `json:"retryCount"`
	MaxRetries         int             `json:"maxRetries"`
	LastErrorTimestamp string          `json:"lastErrorTimestamp"`
	Error              string          `json:"error"`
	OriginalMessage    json.RawMessage `json:"originalMessage,omitempty"`
	CreatedAt          string          `json:"createdAt,omitempty"`
	UpdatedAt          string          `json:"updatedAt,omitempty"`
}

// Stats summarizes the queue.
type Stats struct {
	TotalMessages      int            `json:"totalMessages"`
	MessagesByInstance map[string]int `json:"messagesByInstance"`
	MessagesByError    map[string]int `json:"messagesByError"`
	// Timeline counts messages per day, keyed "2006-01-02".
	Timeline map[string]int `json:"timeline,omitempty"`
}

// RetryResult is the outcome of a bulk retry.
type RetryResult struct {
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

// APIError is a non-2xx DLQ API response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dlq: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("dlq: %s: %s", http.StatusText(e.StatusCode), e.Message)
}

// envelope is the response wrapper every DLQ endpoint uses.
type envelope struct {
	Success         bool      `json:"success"`
	Message         string    `json:"message,omitempty"`
	Stats           *Stats    `json:"stats,omitempty"`
	Messages        []Message `json:"messages,omitempty"`
	MessagesCleared int       `json:"messagesCleared,omitempty"`
}

// ClientConfig configures a Client. BaseURL is required.
type ClientConfig struct {
	// BaseURL is the gateway root, e.g. "http://localhost:8899".
	BaseURL string

	// HTTPClient overrides the transport. Nil uses a client with a
	// 30 second timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the DLQ API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a DLQ client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("dlq: BaseURL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}, nil
}

// Stats fetches the queue summary. The basic endpoint carries the
// counts; the detailed endpoint adds the per-day timeline. The two
// are merged, detailed fields winning.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var basic envelope
	if err := c.doEnvelope(ctx, http.MethodGet, "/api/dlq", &basic); err != nil {
		return Stats{}, err
	}
	var detailed envelope
	if err := c.doEnvelope(ctx, http.MethodGet, "/api/dlq/stats", &detailed); err != nil {
		return Stats{}, err
	}

	stats := Stats{}
	if basic.Stats != nil {
		stats = *basic.Stats
	}
	if detailed.Stats != nil {
		if detailed.Stats.TotalMessages != 0 {
			stats.TotalMessages = detailed.Stats.TotalMessages
		}
		if detailed.Stats.MessagesByInstance != nil {
			stats.MessagesByInstance = detailed.Stats.MessagesByInstance
		}
		if detailed.Stats.MessagesByError != nil {
			stats.MessagesByError = detailed.Stats.MessagesByError
		}
		if detailed.Stats.Timeline != nil {
			stats.Timeline = detailed.Stats.Timeline
		}
	}
	return stats, nil
}

// Messages lists up to limit parked messages (0 means the server
// default).
func (c *Client) Messages(ctx context.Context, limit int) ([]Message, error) {
	path := "/api/dlq/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp envelope
	if err := c.doEnvelope(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Retry requeues one parked message for delivery.
func (c *Client) Retry(ctx context.Context, messageID string) error {
	var resp envelope
	if err := c.doEnvelope(ctx, http.MethodPost, "/api/dlq/retry/"+messageID, &resp); err != nil {
		return err
	}
	c.logger.Info("dlq message requeued", "message_id", messageID)
	return nil
}

// RetryAll requeues every parked message, returning how many were
// retried and how many failed again.
func (c *Client) RetryAll(ctx context.Context) (RetryResult, error) {
	var resp struct {
		Success bool         `json:"success"`
		Message string       `json:"message,omitempty"`
		Stats   *RetryResult `json:"stats,omitempty"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/dlq/retry-all", &resp); err != nil {
		return RetryResult{}, err
	}
	if !resp.Success {
		return RetryResult{}, fmt.Errorf("dlq: retry-all rejected: %s", resp.Message)
	}

	result := RetryResult{}
	if resp.Stats != nil {
		result = *resp.Stats
	}
	c.logger.Info("dlq bulk retry", "retried", result.Retried, "failed", result.Failed)
	return result, nil
}

// Clear drops every parked message, returning how many were cleared.
func (c *Client) Clear(ctx context.Context) (int, error) {
	var resp envelope
	if err := c.doEnvelope(ctx, http.MethodDelete, "/api/dlq/clear", &resp); err != nil {
		return 0, err
	}
	c.logger.Info("dlq cleared", "messages_cleared", resp.MessagesCleared)
	return resp.MessagesCleared, nil
}

// Report is the offline snapshot WriteReport produces.
type Report struct {
	Timestamp  string    `json:"timestamp"`
	Statistics Stats     `json:"statistics"`
	Messages   []Message `json:"messages"`
}

// WriteReport writes a gzip-compressed JSON snapshot of the queue
// (stats plus up to DefaultReportLimit messages) to w.
func (c *Client) WriteReport(ctx context.Context, w io.Writer, now time.Time) error {
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	messages, err := c.Messages(ctx, DefaultReportLimit)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(w)
	encoder := json.NewEncoder(zw)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Report{
		Timestamp:  now.UTC().Format(time.RFC3339),
		Statistics: stats,
		Messages:   messages,
	}); err != nil {
		zw.Close()
		return fmt.Errorf("dlq: encoding report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("dlq: compressing report: %w", err)
	}
	return nil
}

// ReportFilename names a report written at now.
func ReportFilename(now time.Time) string {
	return fmt.Sprintf("dlq-report-%s.json.gz", now.UTC().Format("2006-01-02"))
}

// TodayCount returns how many messages were parked on now's day,
// from the stats timeline.
func TodayCount(stats Stats, now time.Time) int {
	return stats.Timeline[now.UTC().Format("2006-01-02")]
}

// doEnvelope performs a request expecting the standard envelope and
// fails if the envelope reports failure.
func (c *Client) doEnvelope(ctx context.Context, method, path string, resp *envelope) error {
	if err := c.do(ctx, method, path, resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("dlq: %s %s rejected: %s", method, path, resp.Message)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("dlq: building request: %w", err)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dlq: %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: httpResp.StatusCode}
		if data, readErr := netutil.ReadResponse(httpResp.Body); readErr == nil {
			var body struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			}
			if json.Unmarshal(data, &body) == nil {
				apiErr.Message = body.Error
				if apiErr.Message == "" {
					apiErr.Message = body.Message
				}
			}
		}
		return apiErr
	}
	if err := netutil.DecodeResponse(httpResp.Body, v); err != nil {
		return fmt.Errorf("dlq: decoding %s %s response: %w", method, path, err)
	}
	return nil
}
