package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCatchupQuerier implements CatchupQuerier for tests.
type mockCatchupQuerier struct {
	events []CatchupEvent
	err    error
}

func (m *mockCatchupQuerier) GetCatchupEvents(_ context.Context, _ string, sinceID, limit int) ([]CatchupEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []CatchupEvent
	for _, evt := range m.events {
		if evt.ID > sinceID {
			out = append(out, evt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func setupTestManager(t *testing.T, querier CatchupQuerier) (*ConnectionManager, *httptest.Server) {
	t.Helper()

	manager := NewConnectionManager(querier, 5*time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))

	t.Cleanup(func() { server.Close() })
	return manager, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestConnectionManager_ConnectionEstablished(t *testing.T) {
	_, server := setupTestManager(t, &mockCatchupQuerier{})
	conn := connectWS(t, server)

	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestConnectionManager_SubscribeAndBroadcast(t *testing.T) {
	manager, server := setupTestManager(t, &mockCatchupQuerier{})
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	channel := SessionChannel("sess-1")
	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: channel})

	msg := readJSON(t, conn)
	assert.Equal(t, "subscription.confirmed", msg["type"])
	assert.Equal(t, channel, msg["channel"])

	require.Eventually(t, func() bool {
		return manager.subscriberCount(channel) == 1
	}, time.Second, 10*time.Millisecond)

	manager.Broadcast(channel, []byte(`{"type":"new_message","session_id":"sess-1"}`))
	msg = readJSON(t, conn)
	assert.Equal(t, EventTypeNewMessage, msg["type"])

	// A broadcast on another channel is not delivered.
	manager.Broadcast(SessionChannel("other"), []byte(`{"type":"new_message"}`))
	writeJSON(t, conn, ClientMessage{Action: "ping"})
	msg = readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestConnectionManager_Unsubscribe(t *testing.T) {
	manager, server := setupTestManager(t, &mockCatchupQuerier{})
	conn := connectWS(t, server)
	readJSON(t, conn)

	channel := TenantEscalationsChannel("acme")
	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: channel})
	readJSON(t, conn) // subscription.confirmed

	writeJSON(t, conn, ClientMessage{Action: "unsubscribe", Channel: channel})
	require.Eventually(t, func() bool {
		return manager.subscriberCount(channel) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConnectionManager_CatchupOnSubscribe(t *testing.T) {
	querier := &mockCatchupQuerier{events: []CatchupEvent{
		{ID: 1, Payload: map[string]any{"type": EventTypeNewMessage, "session_id": "sess-1"}},
		{ID: 2, Payload: map[string]any{"type": EventTypeEscalationStatusUpdate, "session_id": "sess-1"}},
	}}
	_, server := setupTestManager(t, querier)
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: SessionChannel("sess-1")})
	readJSON(t, conn) // subscription.confirmed

	first := readJSON(t, conn)
	assert.Equal(t, EventTypeNewMessage, first["type"])
	assert.Equal(t, float64(1), first["db_event_id"], "catchup injects the row id")

	second := readJSON(t, conn)
	assert.Equal(t, EventTypeEscalationStatusUpdate, second["type"])
}

func TestConnectionManager_ExplicitCatchupSince(t *testing.T) {
	querier := &mockCatchupQuerier{events: []CatchupEvent{
		{ID: 1, Payload: map[string]any{"type": EventTypeNewMessage}},
		{ID: 2, Payload: map[string]any{"type": EventTypeNewMessage}},
		{ID: 3, Payload: map[string]any{"type": EventTypeNewMessage}},
	}}
	_, server := setupTestManager(t, querier)
	conn := connectWS(t, server)
	readJSON(t, conn)

	since := 2
	writeJSON(t, conn, ClientMessage{
		Action: "catchup", Channel: SessionChannel("sess-1"), LastEventID: &since,
	})
	msg := readJSON(t, conn)
	assert.Equal(t, float64(3), msg["db_event_id"], "only events after last_event_id replay")
}

func TestConnectionManager_SubscribeRequiresChannel(t *testing.T) {
	_, server := setupTestManager(t, &mockCatchupQuerier{})
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "subscribe"})
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
}

func TestTruncateIfNeeded(t *testing.T) {
	small, err := truncateIfNeeded(`{"type":"new_message","session_id":"s1"}`)
	require.NoError(t, err)
	assert.Contains(t, small, "new_message")

	big := map[string]any{
		"type":       EventTypeNewMessage,
		"session_id": "sess-1",
		"tenant_id":  "acme",
		"message":    map[string]any{"content": string(make([]byte, 9000))},
	}
	bigJSON, err := json.Marshal(big)
	require.NoError(t, err)

	truncated, err := truncateIfNeeded(string(bigJSON))
	require.NoError(t, err)
	require.Less(t, len(truncated), 8000)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal([]byte(truncated), &envelope))
	assert.Equal(t, true, envelope["truncated"])
	assert.Equal(t, "sess-1", envelope["session_id"])
	assert.Equal(t, "acme", envelope["tenant_id"])
}
