// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"log/slog"
	"testing"
	"time"
)

func newTestReconciler() (*Reconciler, *Store) {
	store := NewStore()
	return NewReconciler(store, slog.New(slog.DiscardHandler)), store
}

func inboundMessage(id, from string, ts Timestamp) Message {
	return Message{
		ID:        id,
		FromUser:  from,
		ToUser:    "bot",
		Content:   "msg " + id,
		Type:      TypeText,
		Timestamp: ts,
	}
}

func TestApplyListingGroupsByContact(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	r.ApplyListing([]Message{
		inboundMessage("a1", "alice", 100),
		inboundMessage("b1", "bob", 200),
		inboundMessage("a2", "alice", 300),
	})

	if store.Len() != 2 {
		t.Fatalf("conversations: got %d, want 2", store.Len())
	}
	alice := store.Get("alice")
	if len(alice.Messages) != 2 {
		t.Fatalf("alice messages: got %d, want 2", len(alice.Messages))
	}
	if alice.LastTime != 300 || alice.LastPreview != "msg a2" {
		t.Fatalf("alice derived: time=%d preview=%q", alice.LastTime, alice.LastPreview)
	}
	// alice's last message is newest, so alice sorts first.
	requireOrder(t, store, "alice", "bob")
}

func TestApplyListingIsIdempotent(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	listing := []Message{
		inboundMessage("a1", "alice", 100),
		inboundMessage("b1", "bob", 200),
	}

	r.ApplyListing(listing)
	r.ApplyListing(listing)
	r.ApplyListing(listing)

	if got := len(store.Get("alice").Messages); got != 1 {
		t.Fatalf("alice messages after replay: got %d, want 1", got)
	}
}

func TestApplyListingMergesIntoExistingConversation(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	r.ApplyListing([]Message{inboundMessage("a1", "alice", 100)})
	r.ApplyListing([]Message{
		inboundMessage("a1", "alice", 100),
		inboundMessage("a2", "alice", 200),
	})

	if got := len(store.Get("alice").Messages); got != 2 {
		t.Fatalf("alice messages after merge: got %d, want 2", got)
	}
}

func TestApplyListingNeverCountsUnread(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	r.ApplyListing([]Message{
		inboundMessage("a1", "alice", 100),
		inboundMessage("b1", "bob", 200),
	})

	// Listed history is not new mail, selected or not.
	if got := store.Get("alice").Unread; got != 0 {
		t.Fatalf("alice unread: got %d, want 0", got)
	}
	if got := store.Get("bob").Unread; got != 0 {
		t.Fatalf("bob unread: got %d, want 0", got)
	}
}

func TestApplyListingAutoSelectsMostRecent(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	r.ApplyListing([]Message{
		inboundMessage("a1", "alice", 100),
		inboundMessage("b1", "bob", 200),
	})

	if got := store.Selected(); got != "bob" {
		t.Fatalf("selected after first listing: got %q, want %q", got, "bob")
	}

	// A later listing never steals an existing selection, even when
	// another conversation becomes the most recent.
	store.Select("alice")
	r.ApplyListing([]Message{inboundMessage("b2", "bob", 300)})
	if got := store.Selected(); got != "alice" {
		t.Fatalf("selected after refresh: got %q, want %q", got, "alice")
	}
}

func TestApplyUpdateThreadsUnderContact(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()

	// Inbound: threads under the sender.
	r.ApplyUpdate(inboundMessage("m1", "alice", 100))
	if store.Get("alice") == nil {
		t.Fatal("inbound push did not create the sender's conversation")
	}

	// Agent response: threads under the recipient.
	r.ApplyUpdate(Message{
		ID:           "m2",
		FromUser:     "bot",
		ToUser:       "alice",
		Content:      "reply",
		Timestamp:    200,
		IsAIResponse: true,
	})
	alice := store.Get("alice")
	if len(alice.Messages) != 2 {
		t.Fatalf("alice messages: got %d, want 2", len(alice.Messages))
	}
	if store.Len() != 1 {
		t.Fatalf("conversations: got %d, want 1", store.Len())
	}
}

func TestApplyUpdateUnreadAccounting(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	store.Upsert("alice")
	store.Upsert("bob")
	store.Select("alice")

	// Inbound to the selected conversation: no unread.
	r.ApplyUpdate(inboundMessage("m1", "alice", 100))
	if got := store.Get("alice").Unread; got != 0 {
		t.Fatalf("selected unread: got %d, want 0", got)
	}

	// Inbound elsewhere accumulates.
	r.ApplyUpdate(inboundMessage("m2", "bob", 200))
	r.ApplyUpdate(inboundMessage("m3", "bob", 300))
	if got := store.Get("bob").Unread; got != 2 {
		t.Fatalf("bob unread: got %d, want 2", got)
	}

	// A pushed agent response counts too: the conversation has fresh
	// activity the user has not looked at.
	r.ApplyUpdate(Message{ID: "m4", FromUser: "bot", ToUser: "bob", Timestamp: 400, IsAIResponse: true})
	if got := store.Get("bob").Unread; got != 3 {
		t.Fatalf("bob unread after response: got %d, want 3", got)
	}

	// Selecting clears.
	store.Select("bob")
	if got := store.Get("bob").Unread; got != 0 {
		t.Fatalf("bob unread after select: got %d, want 0", got)
	}
}

func TestApplyUpdateMovesConversationToFront(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	r.ApplyListing([]Message{
		inboundMessage("a1", "alice", 100),
		inboundMessage("b1", "bob", 200),
	})
	requireOrder(t, store, "bob", "alice")

	r.ApplyUpdate(inboundMessage("a2", "alice", 300))
	requireOrder(t, store, "alice", "bob")
}

func TestApplyUpdateIsIdempotent(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	push := inboundMessage("m1", "alice", 100)
	r.ApplyUpdate(push)
	r.ApplyUpdate(push)

	alice := store.Get("alice")
	if len(alice.Messages) != 1 {
		t.Fatalf("messages after duplicate push: got %d, want 1", len(alice.Messages))
	}
	if alice.Unread != 1 {
		t.Fatalf("unread after duplicate push: got %d, want 1", alice.Unread)
	}
}

func TestPushAfterListingIsDeduplicated(t *testing.T) {
	t.Parallel()

	r, _ := newTestReconciler()
	r.ApplyListing([]Message{
		inboundMessage("m1", "alice", 100),
		inboundMessage("m2", "alice", 200),
	})

	// The backend pushes a message the listing already carried.
	r.ApplyUpdate(inboundMessage("m2", "alice", 200))

	if got := len(r.CombinedMessages("alice")); got != 2 {
		t.Fatalf("thread: got %d messages, want 2", got)
	}
}

func TestRecordLocalSendCreatesConversation(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	now := time.UnixMilli(1700000000000)

	local := r.RecordLocalSend("carol@s.whatsapp.net", "hello", now)
	if local.Origin != OriginLocal || !local.FromMe || local.FromUser != LocalSender {
		t.Fatalf("local message: %+v", local)
	}
	if local.Timestamp != 1700000000000 {
		t.Fatalf("local timestamp: got %d", local.Timestamp)
	}

	carol := store.Get("carol@s.whatsapp.net")
	if carol == nil || len(carol.Messages) != 1 {
		t.Fatal("local send did not create the conversation")
	}
	if carol.Unread != 0 {
		t.Fatalf("unread after local send: got %d, want 0", carol.Unread)
	}
	requireOrder(t, store, "carol@s.whatsapp.net")
}

func TestLocalSendCoexistsWithServerEcho(t *testing.T) {
	t.Parallel()

	r, _ := newTestReconciler()
	now := time.UnixMilli(1700000000000)

	local := r.RecordLocalSend("carol", "hello", now)
	// The server's copy of the same message arrives under its own ID.
	r.ApplyUpdate(Message{
		ID:           "srv-1",
		FromUser:     "bot",
		ToUser:       "carol",
		Content:      "hello",
		Timestamp:    TimestampAt(now.Add(time.Second)),
		IsAIResponse: true,
	})

	combined := r.CombinedMessages("carol")
	if len(combined) != 2 {
		t.Fatalf("combined: got %d messages, want 2", len(combined))
	}
	if combined[0].ID != local.ID || combined[1].ID != "srv-1" {
		t.Fatalf("combined order: got %q then %q", combined[0].ID, combined[1].ID)
	}
}

func TestCombinedMessagesOrdersAndDeduplicates(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	c := store.Upsert("alice")
	// Raw thread state with out-of-order arrival and a duplicate ID.
	c.Messages = append(c.Messages,
		Message{ID: "m2", Content: "second", Timestamp: 200},
		Message{ID: "m1", Content: "first", Timestamp: 100},
		Message{ID: "m2", Content: "duplicate", Timestamp: 200},
		Message{ID: "m3", Content: "third", Timestamp: 300},
	)

	combined := r.CombinedMessages("alice")
	if len(combined) != 3 {
		t.Fatalf("combined: got %d messages, want 3", len(combined))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if combined[i].ID != want {
			t.Fatalf("combined[%d]: got %q, want %q", i, combined[i].ID, want)
		}
	}
	// First occurrence wins the dedup.
	if combined[1].Content != "second" {
		t.Fatalf("dedup winner: got %q, want %q", combined[1].Content, "second")
	}
}

func TestCombinedMessagesStableWithinSameTimestamp(t *testing.T) {
	t.Parallel()

	r, store := newTestReconciler()
	c := store.Upsert("alice")
	c.Messages = append(c.Messages,
		Message{ID: "m1", Timestamp: 100},
		Message{ID: "m2", Timestamp: 100},
		Message{ID: "m3", Timestamp: 100},
	)

	combined := r.CombinedMessages("alice")
	for i, want := range []string{"m1", "m2", "m3"} {
		if combined[i].ID != want {
			t.Fatalf("combined[%d]: got %q, want %q", i, combined[i].ID, want)
		}
	}
}

func TestCombinedMessagesUnknownContact(t *testing.T) {
	t.Parallel()

	r, _ := newTestReconciler()
	if got := r.CombinedMessages("nobody"); got != nil {
		t.Fatalf("unknown contact: got %v, want nil", got)
	}
}
