// File: api/envelope.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// JSON envelopes sent over the push channel.

package api

import (
	"encoding/json"
	"time"
)

// ChatType is the envelope type of relayed text messages.
const ChatType = "message"

// WelcomeType is the envelope type of the one-shot greeting.
const WelcomeType = "welcome"

// TimestampLayout renders ISO-8601 UTC timestamps with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ChatEnvelope wraps a relayed text message.
type ChatEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// PresenceEnvelope announces the current number of push consumers.
type PresenceEnvelope struct {
	ClientCount int `json:"clientCount"`
}

// WelcomeEnvelope is sent once to a consumer right after it connects.
type WelcomeEnvelope struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	ClientCount int    `json:"clientCount"`
}

// NewChatEnvelope builds the envelope for a validated JSON payload.
func NewChatEnvelope(payload json.RawMessage, at time.Time) ChatEnvelope {
	return ChatEnvelope{
		Type:      ChatType,
		Data:      payload,
		Timestamp: at.UTC().Format(TimestampLayout),
	}
}

// TextMessageOf marshals v into a text Message.
func TextMessageOf(v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: TextMessage, Payload: b}, nil
}
