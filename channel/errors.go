// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import "errors"

// ErrNotOpen is returned when a command is dispatched while the
// channel is not Open and does not become Open within the dispatch
// timeout. Callers surface this as a send failure; commands are never
// silently queued.
var ErrNotOpen = errors.New("channel: not open")

// ErrAttemptsExhausted is recorded as the manager's last error when
// the reconnect attempt cap is reached. The channel stays Idle until
// the owner explicitly calls Connect again.
var ErrAttemptsExhausted = errors.New("channel: reconnect attempts exhausted")

// errConnClosed is returned by MemoryConn operations after Close.
var errConnClosed = errors.New("channel: connection closed")
