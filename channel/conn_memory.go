// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"sync"
)

// MemoryConn is an in-process Conn. One side is driven by the Manager
// through the Conn interface; the other side is driven by a test (or a
// local fake backend) through Deliver, Sent, and Drop. It ships in the
// production tree so integration harnesses outside this package can
// use it too.
type MemoryConn struct {
	incoming chan []byte
	sent     chan []byte
	closed   chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	writeErr error
	graceful bool
	reason   string
}

// NewMemoryConn creates a connected in-process transport. Outbound
// frames are buffered on the Sent channel; a test that never drains it
// can hold up to 64 writes before Write blocks.
func NewMemoryConn() *MemoryConn {
	return &MemoryConn{
		incoming: make(chan []byte, 64),
		sent:     make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

// MemoryDialer returns a Dialer that hands out connections from next.
// Each dial consumes one call; returning an error simulates a dial
// failure.
func MemoryDialer(next func() (*MemoryConn, error)) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, err := next()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func (c *MemoryConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *MemoryConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	injected := c.writeErr
	c.mu.Unlock()
	if injected != nil {
		return injected
	}

	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.sent <- data:
		return nil
	case <-c.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MemoryConn) Close(graceful bool, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.graceful = graceful
		c.reason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// Deliver queues an inbound frame for the Manager's reader.
func (c *MemoryConn) Deliver(data []byte) {
	select {
	case c.incoming <- data:
	case <-c.closed:
	}
}

// Sent exposes the frames written by the Manager, in write order.
func (c *MemoryConn) Sent() <-chan []byte { return c.sent }

// Drop simulates an abnormal remote close: pending and future reads
// fail, which the Manager treats as connection loss.
func (c *MemoryConn) Drop() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// FailWrites makes subsequent writes return err (nil restores normal
// operation). Used to exercise the heartbeat failure path.
func (c *MemoryConn) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// Closed reports whether the connection has been closed or dropped,
// and how a close was performed.
func (c *MemoryConn) Closed() (closed, graceful bool, reason string) {
	select {
	case <-c.closed:
		closed = true
	default:
	}
	c.mu.Lock()
	graceful, reason = c.graceful, c.reason
	c.mu.Unlock()
	return closed, graceful, reason
}

var _ Conn = (*MemoryConn)(nil)
