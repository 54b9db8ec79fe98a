// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat maintains the client-side view of conversations and
// messages for one backend session.
//
// The Reconciler folds inbound frames into the conversation Store:
// bulk listings (the full message history, grouped per contact) and
// incremental pushes (one message each). Ingestion is idempotent: a
// seen-set keyed by message ID makes redelivery after reconnects and
// overlapping refreshes harmless.
//
// Outbound sends are optimistic: RecordLocalSend inserts a local
// placeholder with a synthetic ID before the command is dispatched, so
// the conversation updates immediately. The server's echo of the same
// message arrives later under its own ID; both entries coexist, and
// CombinedMessages presents the merged, ID-deduplicated, time-ordered
// view.
//
// Session ties the pieces together: it owns a channel.Manager and
// channel.Dispatcher, routes frames into the Reconciler, refreshes
// the listing periodically, and exposes the store to the UI layer.
package chat
