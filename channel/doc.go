// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel owns the duplex connection to the messaging backend.
//
// [Manager] runs the connection lifecycle as an explicit state machine:
// Idle → Connecting → Open → Closing → Idle, with Reconnecting entered
// from Open or Connecting on abnormal closure. Transitions are computed
// by a pure function of (state, event, conditions) returning the next
// state and a list of side effects; the Manager executes the effects
// (dial, start/stop heartbeat, schedule/cancel the backoff timer).
// This keeps the lifecycle testable against a fake transport and a
// fake clock with no live connection.
//
// While Open, the Manager writes a "ping" probe every 30 seconds; a
// failed probe write triggers reconnection immediately rather than
// waiting for a close event. Abnormal closes schedule reconnection
// with exponential backoff (1s base, doubling, 5 attempts); exhausting
// the attempts parks the channel in Idle until the owner calls Connect
// again. Disconnect is graceful: it synchronously stops the heartbeat
// and cancels any pending reconnect timer, so no background activity
// survives teardown.
//
// [Dispatcher] encodes the three outbound intents (request a message
// listing, subscribe to incremental updates, send a message) as text
// commands scoped to a session ID. Dispatch requires the channel to be
// Open; if it is not, the dispatcher waits for establishment with a
// bounded timeout and then fails with [ErrNotOpen] rather than queuing
// on a dead channel.
//
// [Conn] abstracts the transport. [Dial] produces WebSocket
// connections; [NewMemoryConn] is an in-process implementation kept in
// the production tree so tests and local development can run against
// the full lifecycle without a backend.
package channel
