package domain

import "time"

// Event types carried over the realtime transport. Producers outside this
// service may introduce further domain update types; the broadcast engine
// transports envelopes without validating their payload schema.
const (
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventTypingStatus     = "typing_status"
	EventTaskUpdated      = "task_updated"
	EventTimeEntryUpdated = "time_entry_updated"
	EventProjectUpdated   = "project_updated"
	EventPong             = "pong"
	EventOnlineUsers      = "online_users"
	EventError            = "error"
)

// Envelope is the wire format for every frame pushed to a connection.
type Envelope struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"user_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope builds a data-carrying envelope stamped with the current time.
func NewEnvelope(eventType string, data any) Envelope {
	return Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// NewPresenceEnvelope builds a user_online/user_offline notification.
func NewPresenceEnvelope(eventType string, userID int64) Envelope {
	return Envelope{
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

// TypingState is the ephemeral per-user typing indicator. Context is an opaque
// identifier naming what the user is typing into (a task, a comment thread).
type TypingState struct {
	IsTyping  bool      `json:"is_typing"`
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OnlineUsersPayload answers a request_online_users query.
type OnlineUsersPayload struct {
	UserIDs []int64 `json:"user_ids"`
}
