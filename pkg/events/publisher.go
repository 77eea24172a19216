package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/convoflow/convoflow/pkg/models"
)

// notifySafeLimit leaves headroom under PostgreSQL's 8000-byte NOTIFY
// payload ceiling.
const notifySafeLimit = 7900

// EventPublisher writes events to the events table and announces them with
// pg_notify in the same transaction, so a row and its notification commit
// or roll back together.
type EventPublisher struct {
	db *sql.DB
}

// NewEventPublisher creates a publisher over the database/sql handle from
// database.Client.DB().
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{db: db}
}

// MessageCreated publishes a new_message event on the session channel.
func (p *EventPublisher) MessageCreated(ctx context.Context, tenantID string, session *models.ChatSession, msg *models.Message) error {
	return p.publish(ctx, SessionChannel(session.ID), NewMessagePayload{
		Type:      EventTypeNewMessage,
		SessionID: session.ID,
		TenantID:  tenantID,
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// EscalationChanged publishes an escalation_status_update event on the
// session channel and on the tenant escalation channel supporter dashboards
// watch. Both publishes are attempted; the first error wins.
func (p *EventPublisher) EscalationChanged(ctx context.Context, session *models.ChatSession) error {
	payload := EscalationStatusPayload{
		Type:      EventTypeEscalationStatusUpdate,
		SessionID: session.ID,
		TenantID:  session.TenantID,
		Session:   session,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	var firstErr error
	if err := p.publish(ctx, SessionChannel(session.ID), payload); err != nil {
		slog.Warn("Escalation update lost on session channel",
			"session_id", session.ID, "error", err)
		firstErr = err
	}
	if err := p.publish(ctx, TenantEscalationsChannel(session.TenantID), payload); err != nil {
		slog.Warn("Escalation update lost on tenant channel",
			"tenant_id", session.TenantID, "session_id", session.ID, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// publish runs the outbox write: INSERT the payload, enrich the NOTIFY copy
// with the new row's id, and pg_notify it. pg_notify is transactional and
// fires at COMMIT.
func (p *EventPublisher) publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO events (channel, payload, created_at) VALUES ($1, $2, $3) RETURNING id`,
		channel, body, time.Now(),
	).Scan(&eventID); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	// Only the NOTIFY copy carries db_event_id; stored rows get it injected
	// at catchup time from the row itself.
	var wire map[string]any
	if err := json.Unmarshal(body, &wire); err != nil {
		return fmt.Errorf("reshape payload for NOTIFY: %w", err)
	}
	wire["db_event_id"] = eventID
	enriched, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal NOTIFY payload: %w", err)
	}
	notifyPayload, err := truncateIfNeeded(string(enriched))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event transaction: %w", err)
	}
	return nil
}

// truncateIfNeeded passes a payload through when it fits the NOTIFY limit,
// otherwise replaces it with a routing envelope. Subscribers seeing
// truncated=true fetch the full row through catchup using db_event_id.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= notifySafeLimit {
		return payloadStr, nil
	}

	var routing struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		TenantID  string `json:"tenant_id"`
		DBEventID *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal([]byte(payloadStr), &routing); err != nil {
		return "", fmt.Errorf("extract routing fields for truncation: %w", err)
	}

	envelope := map[string]any{
		"type":       routing.Type,
		"session_id": routing.SessionID,
		"tenant_id":  routing.TenantID,
		"truncated":  true,
	}
	if routing.DBEventID != nil {
		envelope["db_event_id"] = *routing.DBEventID
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal truncation envelope: %w", err)
	}
	return string(data), nil
}
