// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

// Timestamp is a message time in Unix milliseconds. The backend is
// inconsistent about encoding: bulk listings carry RFC 3339 strings
// while pushes carry numeric milliseconds. Both decode into the same
// representation.
type Timestamp int64

// TimestampAt converts a time.Time.
func TimestampAt(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts back to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(t), 10), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("chat: timestamp: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("chat: timestamp %q: %w", s, err)
		}
		*t = TimestampAt(parsed)
		return nil
	}

	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("chat: timestamp: %w", err)
	}
	*t = Timestamp(int64(ms))
	return nil
}

// Message types as carried on the wire.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypeVideo    = "video"
	TypeDocument = "document"
	TypeSystem   = "system"
)

// Origin records how a message entered the store. It never goes over
// the wire.
type Origin int

const (
	// OriginListed means the message arrived in a bulk listing.
	OriginListed Origin = iota
	// OriginPushed means the message arrived as an incremental push.
	OriginPushed
	// OriginLocal means the message is an optimistic local send that
	// has not (and need not) be confirmed by the server.
	OriginLocal
)

// LocalSender is the FromUser value of optimistic local sends.
const LocalSender = "me"

// Message is one chat message as the client sees it.
type Message struct {
	ID           string    `json:"messageId"`
	FromUser     string    `json:"fromUser"`
	ToUser       string    `json:"toUser"`
	Content      string    `json:"content"`
	Type         string    `json:"messageType"`
	Timestamp    Timestamp `json:"timestamp"`
	IsAIResponse bool      `json:"isAIResponse"`
	FromMe       bool      `json:"fromMe"`

	Origin Origin `json:"-"`
}

// NewLocalID generates the synthetic ID of an optimistic local send.
// The "local_" prefix keeps it disjoint from server-assigned IDs; the
// random tail keeps two sends within the same millisecond distinct.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("local_%d_%09d", now.UnixMilli(), rand.Int64N(1_000_000_000))
}

// Preview is the short conversation-list form of a message: the text
// content, or a bracketed placeholder for media.
func (m Message) Preview() string {
	if m.Type != "" && m.Type != TypeText {
		return "[" + m.Type + "]"
	}
	return m.Content
}

// Contact returns the conversation partner this message belongs to:
// the recipient for AI/agent responses, otherwise the sender.
func (m Message) Contact() string {
	if m.IsAIResponse {
		return m.ToUser
	}
	return m.FromUser
}

// Outbound reports whether the message left this side of the
// conversation (an agent response or a user-initiated send).
func (m Message) Outbound() bool {
	return m.IsAIResponse || m.FromMe || m.Origin == OriginLocal
}
