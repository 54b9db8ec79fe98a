// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dlq is the HTTP client for the gateway's dead-letter queue:
// messages the backend failed to deliver, parked for inspection,
// retry, or clearing. WriteReport produces a compressed snapshot of
// the queue for offline analysis.
package dlq
