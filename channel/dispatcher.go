// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/chatsync/lib/clock"
)

const (
	// DefaultDispatchTimeout bounds how long a command waits for the
	// channel to become Open before failing.
	DefaultDispatchTimeout = 10 * time.Second

	// DefaultAddressSuffix is appended to bare recipient addresses
	// before an outbound message command is framed.
	DefaultAddressSuffix = "@s.whatsapp.net"
)

// DispatcherConfig configures a Dispatcher. Manager and SessionID are
// required.
type DispatcherConfig struct {
	Manager *Manager

	// SessionID scopes every command to one backend session.
	SessionID string

	// AddressSuffix is the platform address domain appended to bare
	// recipients. Empty uses DefaultAddressSuffix.
	AddressSuffix string

	// DispatchTimeout is the bounded wait for an Open channel. Zero
	// uses DefaultDispatchTimeout.
	DispatchTimeout time.Duration

	// Clock drives the dispatch timeout. Nil uses the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Dispatcher frames session-scoped commands and writes them through
// the Manager. A command issued while the channel is establishing
// waits up to the dispatch timeout for Open; past the deadline it
// fails with an error wrapping ErrNotOpen. Nothing is queued.
type Dispatcher struct {
	manager *Manager
	session string
	suffix  string
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger
}

// sendPayload is the JSON argument of a messages:send command.
type sendPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// NewDispatcher creates a Dispatcher bound to one session.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Manager == nil {
		return nil, fmt.Errorf("channel: Manager is required")
	}
	if config.SessionID == "" {
		return nil, fmt.Errorf("channel: SessionID is required")
	}

	suffix := config.AddressSuffix
	if suffix == "" {
		suffix = DefaultAddressSuffix
	}
	timeout := config.DispatchTimeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		manager: config.Manager,
		session: config.SessionID,
		suffix:  suffix,
		timeout: timeout,
		clock:   c,
		logger:  logger,
	}, nil
}

// RequestListing asks the backend for the full message listing of this
// session. The response arrives asynchronously as a messages:list
// frame.
func (d *Dispatcher) RequestListing(ctx context.Context) error {
	return d.dispatch(ctx, fmt.Sprintf("%s:messages:list", d.session))
}

// SubscribeUpdates registers this session for incremental
// messages:update push frames.
func (d *Dispatcher) SubscribeUpdates(ctx context.Context) error {
	return d.dispatch(ctx, fmt.Sprintf("%s:messages:update", d.session))
}

// SendMessage dispatches an outbound message. The recipient address is
// normalized with the platform suffix before framing.
func (d *Dispatcher) SendMessage(ctx context.Context, to, text string) error {
	payload, err := json.Marshal(sendPayload{
		To:      d.NormalizeAddress(to),
		Message: text,
	})
	if err != nil {
		return fmt.Errorf("channel: encoding send payload: %w", err)
	}
	return d.dispatch(ctx, fmt.Sprintf("%s:messages:send %s", d.session, payload))
}

// NormalizeAddress appends the platform address suffix unless the
// address already carries it.
func (d *Dispatcher) NormalizeAddress(to string) string {
	if strings.HasSuffix(to, d.suffix) {
		return to
	}
	return to + d.suffix
}

// dispatch waits (bounded) for the channel to be Open, then writes the
// command as a single text frame.
func (d *Dispatcher) dispatch(ctx context.Context, command string) error {
	select {
	case <-d.manager.WhenOpen():
	case <-d.clock.After(d.timeout):
		d.logger.Warn("command dispatch timed out waiting for channel",
			"session_id", d.session,
			"timeout", d.timeout,
		)
		return fmt.Errorf("channel: dispatch timed out after %s: %w", d.timeout, ErrNotOpen)
	case <-ctx.Done():
		return fmt.Errorf("channel: dispatch: %w", ctx.Err())
	}

	if err := d.manager.Send(ctx, []byte(command)); err != nil {
		return err
	}
	d.logger.Debug("command dispatched", "session_id", d.session)
	return nil
}
