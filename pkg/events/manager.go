package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	// catchupLimit caps one replay. Past it the client is told to reload
	// over REST instead of paginating the stream.
	catchupLimit = 200

	// listenTimeout bounds the LISTEN round-trip when a channel gains its
	// first subscriber.
	listenTimeout = 10 * time.Second
)

// CatchupEvent is one persisted event row returned by the catchup query.
type CatchupEvent struct {
	ID      int
	Payload map[string]any
}

// CatchupQuerier queries persisted events for catchup.
type CatchupQuerier interface {
	GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error)
}

// subscriber is one WebSocket client. channels is touched only by the
// goroutine running HandleConnection (its read loop and deferred teardown),
// so it needs no lock.
type subscriber struct {
	id       string
	sock     *websocket.Conn
	channels map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// ConnectionManager owns this process's WebSocket clients and their channel
// subscriptions. Cross-process delivery arrives through the NotifyListener;
// the manager only fans in-process.
type ConnectionManager struct {
	mu        sync.RWMutex
	clients   map[string]*subscriber
	byChannel map[string]map[string]*subscriber

	catchup      CatchupQuerier
	writeTimeout time.Duration
	listener     atomic.Pointer[NotifyListener]
}

// NewConnectionManager creates a manager. writeTimeout bounds every
// per-client send so one stalled socket cannot back up the rest.
func NewConnectionManager(catchup CatchupQuerier, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		clients:      make(map[string]*subscriber),
		byChannel:    make(map[string]map[string]*subscriber),
		catchup:      catchup,
		writeTimeout: writeTimeout,
	}
}

// SetListener wires the NotifyListener for dynamic LISTEN/UNLISTEN, once at
// startup after both sides exist. A nil listener (tests, single-pod) leaves
// delivery purely in-process.
func (m *ConnectionManager) SetListener(l *NotifyListener) {
	m.listener.Store(l)
}

// HandleConnection runs the lifecycle of one upgraded WebSocket connection
// and blocks until it closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	sub := &subscriber{
		id:       uuid.NewString(),
		sock:     conn,
		channels: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	m.mu.Lock()
	m.clients[sub.id] = sub
	m.mu.Unlock()
	defer m.drop(sub)

	m.send(sub, map[string]string{
		"type":          "connection.established",
		"connection_id": sub.id,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Dropping malformed WebSocket frame", "connection_id", sub.id, "error", err)
			continue
		}
		m.dispatch(ctx, sub, &msg)
	}
}

func (m *ConnectionManager) dispatch(ctx context.Context, sub *subscriber, msg *ClientMessage) {
	if msg.Action == "ping" {
		m.send(sub, map[string]string{"type": "pong"})
		return
	}
	if msg.Channel == "" {
		m.send(sub, map[string]string{
			"type":    "error",
			"message": "channel is required for " + msg.Action,
		})
		return
	}

	switch msg.Action {
	case "subscribe":
		if err := m.attach(sub, msg.Channel); err != nil {
			m.send(sub, map[string]string{
				"type":    "subscription.error",
				"channel": msg.Channel,
				"message": "failed to subscribe to channel",
			})
			return
		}
		m.send(sub, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})
		// Late subscribers get the channel's backlog right away.
		m.replay(ctx, sub, msg.Channel, 0)

	case "unsubscribe":
		m.detach(sub, msg.Channel)

	case "catchup":
		if msg.LastEventID != nil {
			m.replay(ctx, sub, msg.Channel, *msg.LastEventID)
		}
	}
}

// attach registers sub on channel. The first subscriber triggers LISTEN
// synchronously, so by the time the confirmation and auto-replay go out,
// live delivery is already active and no event can fall between them.
func (m *ConnectionManager) attach(sub *subscriber, channel string) error {
	m.mu.Lock()
	set, known := m.byChannel[channel]
	if !known {
		set = make(map[string]*subscriber)
		m.byChannel[channel] = set
	}
	set[sub.id] = sub
	m.mu.Unlock()

	if !known {
		if l := m.listener.Load(); l != nil {
			listenCtx, cancel := context.WithTimeout(context.Background(), listenTimeout)
			defer cancel()
			if err := l.Subscribe(listenCtx, channel); err != nil {
				slog.Error("LISTEN failed", "channel", channel, "error", err)
				m.evictChannel(sub, channel)
				return err
			}
		}
	}

	sub.channels[channel] = struct{}{}
	return nil
}

// evictChannel tears down a channel whose LISTEN failed. Clients that
// subscribed while the LISTEN was in flight saw an existing channel and were
// confirmed on one that never went live; they get subscription.error and
// must treat it as authoritative.
func (m *ConnectionManager) evictChannel(failing *subscriber, channel string) {
	m.mu.Lock()
	var orphaned []*subscriber
	for id, other := range m.byChannel[channel] {
		if id != failing.id {
			orphaned = append(orphaned, other)
		}
	}
	delete(m.byChannel, channel)
	m.mu.Unlock()

	for _, other := range orphaned {
		slog.Warn("Removing subscriber of failed channel",
			"connection_id", other.id, "channel", channel)
		m.send(other, map[string]string{
			"type":    "subscription.error",
			"channel": channel,
			"message": "channel listen failed; subscription removed",
		})
	}
}

// detach removes sub from channel. The last one out schedules UNLISTEN on a
// goroutine that re-checks for a quick resubscribe first, so an
// unsubscribe/resubscribe cycle cannot drop an active LISTEN.
func (m *ConnectionManager) detach(sub *subscriber, channel string) {
	delete(sub.channels, channel)

	m.mu.Lock()
	set, known := m.byChannel[channel]
	if known {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(m.byChannel, channel)
		}
	}
	last := known && len(set) == 0
	m.mu.Unlock()

	if !last {
		return
	}
	l := m.listener.Load()
	if l == nil {
		return
	}
	go func() {
		m.mu.RLock()
		_, revived := m.byChannel[channel]
		m.mu.RUnlock()
		if revived {
			return
		}
		if err := l.Unsubscribe(context.Background(), channel); err != nil {
			slog.Error("UNLISTEN failed", "channel", channel, "error", err)
		}
	}()
}

// replay streams persisted events newer than sinceID to one client, oldest
// first.
func (m *ConnectionManager) replay(ctx context.Context, sub *subscriber, channel string, sinceID int) {
	if m.catchup == nil {
		return
	}
	rows, err := m.catchup.GetCatchupEvents(ctx, channel, sinceID, catchupLimit+1)
	if err != nil {
		slog.Error("Catchup query failed", "channel", channel, "error", err)
		return
	}
	overflow := len(rows) > catchupLimit
	if overflow {
		rows = rows[:catchupLimit]
	}

	for _, row := range rows {
		// Stored rows carry no db_event_id (only the NOTIFY copy does);
		// inject it so the client can track its replay position.
		row.Payload["db_event_id"] = row.ID
		data, err := json.Marshal(row.Payload)
		if err != nil {
			continue
		}
		if err := m.write(sub, data); err != nil {
			slog.Warn("Catchup delivery failed", "connection_id", sub.id, "error", err)
			return
		}
	}

	if overflow {
		m.send(sub, map[string]any{
			"type":     "catchup.overflow",
			"channel":  channel,
			"has_more": true,
		})
	}
}

// Broadcast fans an event out to the channel's local subscribers. A slow or
// closed socket is logged and skipped; it never blocks the others.
func (m *ConnectionManager) Broadcast(channel string, event []byte) {
	m.mu.RLock()
	set := m.byChannel[channel]
	targets := make([]*subscriber, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	m.mu.RUnlock()

	for _, sub := range targets {
		if err := m.write(sub, event); err != nil {
			slog.Warn("Dropping event for unreachable subscriber",
				"connection_id", sub.id, "error", err)
		}
	}
}

// ActiveConnections reports the number of open WebSocket clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// subscriberCount lets tests poll for registration instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byChannel[channel])
}

func (m *ConnectionManager) drop(sub *subscriber) {
	for channel := range sub.channels {
		m.detach(sub, channel)
	}
	m.mu.Lock()
	delete(m.clients, sub.id)
	m.mu.Unlock()

	sub.cancel()
	_ = sub.sock.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) send(sub *subscriber, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket frame", "connection_id", sub.id, "error", err)
		return
	}
	if err := m.write(sub, data); err != nil {
		slog.Warn("WebSocket write failed", "connection_id", sub.id, "error", err)
	}
}

func (m *ConnectionManager) write(sub *subscriber, data []byte) error {
	writeCtx, cancel := context.WithTimeout(sub.ctx, m.writeTimeout)
	defer cancel()
	return sub.sock.Write(writeCtx, websocket.MessageText, data)
}
