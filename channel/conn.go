// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// maxFrameSize bounds inbound frame reads. Bulk message listings are
// the largest legitimate frame and stay far below this.
const maxFrameSize = 16 << 20

// Conn is a duplex text-frame transport. *wsConn is the production
// implementation; [MemoryConn] is the in-process one for tests and
// local development.
type Conn interface {
	// Read returns the next inbound frame. It blocks until a frame
	// arrives, the connection fails, or ctx is cancelled.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one text frame.
	Write(ctx context.Context, data []byte) error

	// Close tears the connection down. graceful selects a normal
	// closure handshake; otherwise the transport is dropped
	// immediately.
	Close(graceful bool, reason string) error
}

// Dialer opens a new transport. The context covers the lifetime of
// the connection, not just the dial: cancelling it stops the reader.
type Dialer func(ctx context.Context) (Conn, error)

// Dial returns a Dialer that opens a WebSocket to url
// (e.g. "ws://localhost:8899").
func Dial(url string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		ws, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("channel: dialing %s: %w", url, err)
		}
		ws.SetReadLimit(maxFrameSize)
		return &wsConn{ws: ws}, nil
	}
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("channel: read: %w", err)
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("channel: write: %w", err)
	}
	return nil
}

func (c *wsConn) Close(graceful bool, reason string) error {
	if !graceful {
		return c.ws.CloseNow()
	}
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}
