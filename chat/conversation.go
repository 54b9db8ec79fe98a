// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"slices"
	"strings"
)

// Conversation is the per-contact message thread plus the derived
// fields the conversation list renders.
type Conversation struct {
	// Contact is the normalized platform address of the other party.
	Contact string

	// Messages holds the thread in insertion order. CombinedMessages
	// on the Reconciler produces the time-ordered, deduplicated view.
	Messages []Message

	// LastPreview and LastTime describe the most recent message by
	// timestamp, for the conversation list row.
	LastPreview string
	LastTime    Timestamp

	// Unread counts messages that arrived while the conversation was
	// not selected. Always zero for the selected conversation.
	Unread int

	// Group reports a group-chat address.
	Group bool
}

// add appends a message and refreshes the derived preview fields.
func (c *Conversation) add(m Message) {
	c.Messages = append(c.Messages, m)
	if m.Timestamp >= c.LastTime {
		c.LastTime = m.Timestamp
		c.LastPreview = m.Preview()
	}
}

// refreshDerived recomputes the preview fields from scratch. Used
// after bulk ingestion where per-message maintenance would recompute
// the same answer repeatedly.
func (c *Conversation) refreshDerived() {
	c.LastTime = 0
	c.LastPreview = ""
	for _, m := range c.Messages {
		if m.Timestamp >= c.LastTime {
			c.LastTime = m.Timestamp
			c.LastPreview = m.Preview()
		}
	}
}

func (c *Conversation) clone() *Conversation {
	out := *c
	out.Messages = slices.Clone(c.Messages)
	return &out
}

// IsGroupAddress reports whether a platform address names a group
// chat.
func IsGroupAddress(contact string) bool {
	return strings.HasSuffix(contact, "@g.us")
}

// Store holds every conversation of one session, ordered by recency,
// plus the selection that drives unread accounting. Store does no
// locking; the owning Session serializes access.
type Store struct {
	conversations map[string]*Conversation
	// order holds contacts most-recent-first.
	order    []string
	selected string
}

// NewStore returns an empty store with no selection.
func NewStore() *Store {
	return &Store{conversations: make(map[string]*Conversation)}
}

// Get returns the conversation for contact, or nil.
func (s *Store) Get(contact string) *Conversation {
	return s.conversations[contact]
}

// Upsert returns the conversation for contact, creating it at the
// front of the order if absent.
func (s *Store) Upsert(contact string) *Conversation {
	if c, ok := s.conversations[contact]; ok {
		return c
	}
	c := &Conversation{Contact: contact, Group: IsGroupAddress(contact)}
	s.conversations[contact] = c
	s.order = append([]string{contact}, s.order...)
	return c
}

// MoveToFront makes contact the most recent conversation.
func (s *Store) MoveToFront(contact string) {
	i := slices.Index(s.order, contact)
	if i <= 0 {
		return
	}
	s.order = slices.Delete(s.order, i, i+1)
	s.order = append([]string{contact}, s.order...)
}

// SortByRecency reorders conversations by their last message time,
// newest first. The sort is stable: conversations with equal
// timestamps keep their current relative order, so a preceding
// MoveToFront acts as the tie-break.
func (s *Store) SortByRecency() {
	slices.SortStableFunc(s.order, func(a, b string) int {
		ta := s.conversations[a].LastTime
		tb := s.conversations[b].LastTime
		switch {
		case ta > tb:
			return -1
		case ta < tb:
			return 1
		default:
			return 0
		}
	})
}

// Select makes contact the active conversation and clears its unread
// count. Selecting "" deselects.
func (s *Store) Select(contact string) {
	s.selected = contact
	if c, ok := s.conversations[contact]; ok {
		c.Unread = 0
	}
}

// Selected returns the active contact, or "".
func (s *Store) Selected() string {
	return s.selected
}

// Front returns the most recent contact, or "" for an empty store.
func (s *Store) Front() string {
	if len(s.order) == 0 {
		return ""
	}
	return s.order[0]
}

// Snapshot returns the conversations in recency order. The slice and
// the conversations are copies; mutating them does not touch the
// store.
func (s *Store) Snapshot() []*Conversation {
	out := make([]*Conversation, 0, len(s.order))
	for _, contact := range s.order {
		out = append(out, s.conversations[contact].clone())
	}
	return out
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	return len(s.conversations)
}

// Reset drops every conversation but keeps the selection, so a
// reload does not deselect the thread the user is reading.
func (s *Store) Reset() {
	s.conversations = make(map[string]*Conversation)
	s.order = nil
}
