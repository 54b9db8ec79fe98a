// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts timer primitives so the channel manager's
// heartbeat, reconnect backoff, and the session's auto-refresh interval
// are deterministic under test.
//
// Production code injects [Real]; tests inject [Fake] and drive time
// explicitly with Advance. Every component that would otherwise call
// time.Now, time.After, time.AfterFunc, or time.NewTicker takes a Clock
// instead, which is what makes the backoff-schedule and
// teardown-cleanliness tests exact rather than sleep-based.
package clock
