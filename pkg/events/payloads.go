package events

import "github.com/convoflow/convoflow/pkg/models"

// NewMessagePayload is the payload for new_message events. The full message
// rides along so subscribers render it without a fetch.
type NewMessagePayload struct {
	Type      string          `json:"type"` // always EventTypeNewMessage
	SessionID string          `json:"session_id"`
	TenantID  string          `json:"tenant_id"`
	Message   *models.Message `json:"message"`
	Timestamp string          `json:"timestamp"` // RFC3339Nano
}

// EscalationStatusPayload is the payload for escalation_status_update
// events, carrying the full updated session.
type EscalationStatusPayload struct {
	Type      string              `json:"type"` // always EventTypeEscalationStatusUpdate
	SessionID string              `json:"session_id"`
	TenantID  string              `json:"tenant_id"`
	Session   *models.ChatSession `json:"session"`
	Timestamp string              `json:"timestamp"` // RFC3339Nano
}
