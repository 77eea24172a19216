package models

import "time"

// Role identifies the author kind of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSupporter Role = "supporter"
	RoleSystem    Role = "system"
)

// Message is one entry in a session's append-only transcript. Messages are
// immutable once created. SenderUserID is set for supporter and system
// messages sent on behalf of a staff user.
type Message struct {
	ID           string         `json:"message_id"`
	SessionID    string         `json:"session_id"`
	Role         Role           `json:"role"`
	Content      string         `json:"content"`
	SenderUserID string         `json:"sender_user_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CreateMessageRequest contains fields for appending a message to a session.
type CreateMessageRequest struct {
	SessionID    string         `json:"session_id"`
	Role         Role           `json:"role"`
	Content      string         `json:"content"`
	SenderUserID string         `json:"sender_user_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
