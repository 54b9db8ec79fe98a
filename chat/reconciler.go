// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"log/slog"
	"slices"
	"time"
)

// Reconciler folds inbound frames and local sends into the Store. A
// seen-set keyed by message ID makes every ingestion path idempotent:
// replaying a listing after a reconnect, or receiving a push that a
// concurrent refresh already listed, changes nothing.
//
// Reconciler does no locking; the owning Session serializes access.
type Reconciler struct {
	store  *Store
	seen   map[string]struct{}
	logger *slog.Logger
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store *Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  store,
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// ApplyListing merges a bulk message listing into the store. Messages
// are grouped per contact; already-seen messages are skipped, so the
// periodic refresh and post-reconnect replays are harmless. Listed
// messages are history, not arrivals, and never count as unread. If
// nothing is selected afterwards, the most recent conversation becomes
// the selection.
func (r *Reconciler) ApplyListing(messages []Message) {
	touched := make(map[string]bool)
	ingested := 0

	for _, m := range messages {
		if m.ID == "" {
			r.logger.Warn("dropping listed message without an ID")
			continue
		}
		if _, ok := r.seen[m.ID]; ok {
			continue
		}
		r.seen[m.ID] = struct{}{}

		m.Origin = OriginListed
		contact := m.Contact()
		conversation := r.store.Upsert(contact)
		conversation.Messages = append(conversation.Messages, m)
		touched[contact] = true
		ingested++
	}

	for contact := range touched {
		r.store.Get(contact).refreshDerived()
	}
	r.store.SortByRecency()

	if r.store.Selected() == "" {
		if front := r.store.Front(); front != "" {
			r.store.Select(front)
		}
	}

	r.logger.Debug("listing reconciled",
		"listed", len(messages),
		"ingested", ingested,
		"conversations", r.store.Len(),
	)
}

// ApplyUpdate folds one pushed message into the store. The target
// conversation is the recipient for AI responses and the sender
// otherwise; it is created if this is its first message, moved to the
// front of the list, and its unread count bumped unless it is
// selected.
func (r *Reconciler) ApplyUpdate(m Message) {
	if m.ID == "" {
		r.logger.Warn("dropping pushed message without an ID")
		return
	}
	if _, ok := r.seen[m.ID]; ok {
		r.logger.Debug("duplicate push ignored", "message_id", m.ID)
		return
	}
	r.seen[m.ID] = struct{}{}

	m.Origin = OriginPushed
	contact := m.Contact()
	conversation := r.store.Upsert(contact)
	conversation.add(m)
	if contact != r.store.Selected() {
		conversation.Unread++
	}

	r.store.MoveToFront(contact)
	r.store.SortByRecency()

	r.logger.Debug("push reconciled", "message_id", m.ID, "contact", contact)
}

// RecordLocalSend inserts the optimistic placeholder for an outbound
// message, before the send command is dispatched. The conversation is
// created if this is its first message. The returned message carries
// the synthetic local ID.
func (r *Reconciler) RecordLocalSend(to, text string, now time.Time) Message {
	m := Message{
		ID:        NewLocalID(now),
		FromUser:  LocalSender,
		ToUser:    to,
		Content:   text,
		Type:      TypeText,
		Timestamp: TimestampAt(now),
		FromMe:    true,
		Origin:    OriginLocal,
	}
	r.seen[m.ID] = struct{}{}

	conversation := r.store.Upsert(to)
	conversation.add(m)
	r.store.MoveToFront(to)
	r.store.SortByRecency()

	return m
}

// CombinedMessages is the render-ready view of one conversation:
// deduplicated by message ID (first occurrence wins) and sorted by
// timestamp ascending. The sort is stable, so messages within the
// same millisecond keep arrival order. The input is not modified.
func (r *Reconciler) CombinedMessages(contact string) []Message {
	conversation := r.store.Get(contact)
	if conversation == nil {
		return nil
	}

	byID := make(map[string]struct{}, len(conversation.Messages))
	out := make([]Message, 0, len(conversation.Messages))
	for _, m := range conversation.Messages {
		if _, ok := byID[m.ID]; ok {
			continue
		}
		byID[m.ID] = struct{}{}
		out = append(out, m)
	}

	slices.SortStableFunc(out, func(a, b Message) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})
	return out
}
