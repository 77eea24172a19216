// Package events provides real-time event delivery via WebSocket and
// PostgreSQL NOTIFY/LISTEN for cross-pod distribution.
//
// Every event is persisted to the events table and announced with
// pg_notify in the same transaction. Subscribers that reconnect replay
// missed rows by id ("catchup") before resuming live delivery, so a
// dropped WebSocket never loses a message or an escalation transition.
package events

// Event types delivered to subscribers. Each payload carries the full
// updated entity so clients never need a follow-up fetch.
const (
	// EventTypeNewMessage announces a message appended to a session:
	// assistant replies, supporter messages, and system notices alike.
	EventTypeNewMessage = "new_message"

	// EventTypeEscalationStatusUpdate announces an escalation transition.
	EventTypeEscalationStatusUpdate = "escalation_status_update"
)

// SessionChannel returns the channel for one session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// TenantEscalationsChannel returns the channel supporter dashboards
// subscribe to for a tenant's escalation queue.
// Format: "tenant:{tenant_id}:escalations"
func TenantEscalationsChannel(tenantID string) string {
	return "tenant:" + tenantID + ":escalations"
}

// ClientMessage is the JSON structure for client -> server WebSocket
// messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // e.g. "session:abc-123"
	LastEventID *int   `json:"last_event_id,omitempty"` // for catchup
}
