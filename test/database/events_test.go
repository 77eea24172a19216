package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/events"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/store"
)

// Verifies the full real-time path: publisher persists an event and fires
// pg_notify on one connection, the NotifyListener on a separate dedicated
// connection receives it and the ConnectionManager delivers it to a
// subscribed WebSocket client.
func TestEventDelivery_AcrossConnections(t *testing.T) {
	ctx := context.Background()
	shared := NewSharedTestDB(t)

	client := shared.NewClient(t)
	st := store.NewPostgres(client.Pool())

	manager := events.NewConnectionManager(events.NewStoreCatchupAdapter(st), 5*time.Second)
	listener := events.NewNotifyListener(shared.ConnString(), manager)
	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() { listener.Stop(context.Background()) })
	manager.SetListener(listener)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)

	session := &models.ChatSession{
		ID:       uuid.NewString(),
		TenantID: "acme",
	}
	channel := events.SessionChannel(session.ID)

	conn := dialWS(t, server.URL)
	requireFrameType(t, conn, "connection.established")

	sendJSON(t, conn, events.ClientMessage{Action: "subscribe", Channel: channel})
	requireFrameType(t, conn, "subscription.confirmed")

	publisher := events.NewEventPublisher(client.DB())
	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   "Your order ships tomorrow.",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, publisher.MessageCreated(ctx, "acme", session, msg))

	frame := readFrame(t, conn)
	assert.Equal(t, events.EventTypeNewMessage, frame["type"])
	assert.Equal(t, session.ID, frame["session_id"])
	assert.NotNil(t, frame["db_event_id"])
	message, ok := frame["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Your order ships tomorrow.", message["content"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	// A second event published while nobody is connected must replay on the
	// next subscribe via catchup.
	require.NoError(t, publisher.EscalationChanged(ctx, &models.ChatSession{
		ID:               session.ID,
		TenantID:         "acme",
		EscalationStatus: models.EscalationPending,
	}))

	conn2 := dialWS(t, server.URL)
	requireFrameType(t, conn2, "connection.established")
	sendJSON(t, conn2, events.ClientMessage{Action: "subscribe", Channel: channel})
	requireFrameType(t, conn2, "subscription.confirmed")

	// Auto-catchup replays everything on the channel, oldest first.
	replay1 := readFrame(t, conn2)
	assert.Equal(t, events.EventTypeNewMessage, replay1["type"])
	replay2 := readFrame(t, conn2)
	assert.Equal(t, events.EventTypeEscalationStatusUpdate, replay2["type"])
	sess, ok := replay2["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(models.EscalationPending), sess["escalation_status"])

	require.NoError(t, conn2.Close(websocket.StatusNormalClosure, ""))
}

// Escalation updates fan out to the tenant dashboard channel too.
func TestEventDelivery_TenantChannel(t *testing.T) {
	ctx := context.Background()
	shared := NewSharedTestDB(t)

	client := shared.NewClient(t)
	st := store.NewPostgres(client.Pool())

	manager := events.NewConnectionManager(events.NewStoreCatchupAdapter(st), 5*time.Second)
	listener := events.NewNotifyListener(shared.ConnString(), manager)
	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() { listener.Stop(context.Background()) })
	manager.SetListener(listener)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)

	conn := dialWS(t, server.URL)
	requireFrameType(t, conn, "connection.established")
	sendJSON(t, conn, events.ClientMessage{Action: "subscribe", Channel: events.TenantEscalationsChannel("acme")})
	requireFrameType(t, conn, "subscription.confirmed")

	publisher := events.NewEventPublisher(client.DB())
	require.NoError(t, publisher.EscalationChanged(ctx, &models.ChatSession{
		ID:               uuid.NewString(),
		TenantID:         "acme",
		EscalationStatus: models.EscalationAssigned,
		AssignedUserID:   "sup-1",
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, events.EventTypeEscalationStatusUpdate, frame["type"])
	assert.Equal(t, "acme", frame["tenant_id"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+httpURL[len("http"):], nil)
	require.NoError(t, err)
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func requireFrameType(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	frame := readFrame(t, conn)
	require.Equal(t, frameType, frame["type"], "unexpected frame: %v", frame)
	return frame
}
