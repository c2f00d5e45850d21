// Package phoenix implements the client side of the Phoenix channel
// protocol: one websocket session multiplexed across per-topic channels,
// with join/leave handshakes, heartbeats and automatic rejoin after
// reconnects.
package phoenix

import (
	"encoding/json"
	"fmt"
)

// Reserved protocol events.
const (
	EventJoin      = "phx_join"
	EventReply     = "phx_reply"
	EventLeave     = "phx_leave"
	EventClose     = "phx_close"
	EventError     = "phx_error"
	EventHeartbeat = "heartbeat"
)

// Reply statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// TopicPhoenix is the reserved control topic used for heartbeats.
const TopicPhoenix = "phoenix"

// Message is one protocol frame. Replies are correlated to the request that
// produced them via Ref.
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

// Reply is the payload of a phx_reply frame.
type Reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// IsReply reports whether the message is an acknowledgement frame.
func (m *Message) IsReply() bool {
	return m.Event == EventReply
}

// DecodeReply parses the payload of a phx_reply frame.
func (m *Message) DecodeReply() (*Reply, error) {
	if !m.IsReply() {
		return nil, fmt.Errorf("message event %q is not a reply", m.Event)
	}
	var r Reply
	if err := json.Unmarshal(m.Payload, &r); err != nil {
		return nil, fmt.Errorf("failed to decode reply payload: %w", err)
	}
	return &r, nil
}

var emptyPayload = json.RawMessage(`{}`)

func joinMessage(topic, ref string) *Message {
	return &Message{Topic: topic, Event: EventJoin, Payload: emptyPayload, Ref: ref}
}

func leaveMessage(topic, ref string) *Message {
	return &Message{Topic: topic, Event: EventLeave, Payload: emptyPayload, Ref: ref}
}

func heartbeatMessage(ref string) *Message {
	return &Message{Topic: TopicPhoenix, Event: EventHeartbeat, Payload: emptyPayload, Ref: ref}
}
