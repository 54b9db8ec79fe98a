// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"fmt"
)

// Inbound frame types.
const (
	FrameMessagesList   = "messages:list"
	FrameMessagesUpdate = "messages:update"
	FrameMessagesSend   = "messages:send"
)

// Frame is one inbound channel frame. Listings carry Messages; pushes
// and send acknowledgements carry Message.
type Frame struct {
	Type       string    `json:"type"`
	Success    bool      `json:"success"`
	InstanceID string    `json:"instanceId"`
	Messages   []Message `json:"messages,omitempty"`
	Message    *Message  `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ParseFrame decodes an inbound frame. Malformed frames are a normal
// operational condition (the backend shares the socket with liveness
// probes and diagnostics), so callers log-and-drop rather than treat
// an error here as fatal.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("chat: parsing frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("chat: frame has no type")
	}
	return f, nil
}
