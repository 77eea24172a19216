package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// waitSlice is how long one WaitForNotification call blocks before the loop
// checks for queued LISTEN/UNLISTEN statements.
const waitSlice = 100 * time.Millisecond

// stmt is a LISTEN or UNLISTEN statement queued for the receive loop, the
// sole goroutine allowed to touch the pgx connection. Running Exec
// concurrently with WaitForNotification trips pgx's "conn busy" guard.
type stmt struct {
	sql  string
	done chan error
}

// NotifyListener owns the dedicated PostgreSQL LISTEN connection and hands
// incoming notifications to the local ConnectionManager. It reconnects with
// backoff and re-LISTENs its channel set after an outage.
type NotifyListener struct {
	connString string
	manager    *ConnectionManager

	mu   sync.Mutex // guards conn
	conn *pgx.Conn

	active   map[string]struct{} // channels currently LISTENed
	activeMu sync.RWMutex

	stmts   chan stmt
	started atomic.Bool

	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// NewNotifyListener creates a listener that will connect to connString.
func NewNotifyListener(connString string, manager *ConnectionManager) *NotifyListener {
	return &NotifyListener{
		connString: connString,
		manager:    manager,
		active:     make(map[string]struct{}),
		stmts:      make(chan stmt, 16),
	}
}

// Start opens the dedicated connection and launches the receive loop.
func (l *NotifyListener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("failed to connect for LISTEN: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.started.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	l.stopLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.run(loopCtx)
	}()

	slog.Info("NotifyListener started")
	return nil
}

// Subscribe starts LISTEN on a channel. Idempotent.
func (l *NotifyListener) Subscribe(ctx context.Context, channel string) error {
	l.activeMu.RLock()
	_, listening := l.active[channel]
	l.activeMu.RUnlock()
	if listening {
		return nil
	}

	if err := l.exec(ctx, "LISTEN", channel); err != nil {
		return err
	}
	l.activeMu.Lock()
	l.active[channel] = struct{}{}
	l.activeMu.Unlock()
	slog.Debug("Listening on NOTIFY channel", "channel", channel)
	return nil
}

// Unsubscribe stops LISTEN on a channel. Idempotent.
func (l *NotifyListener) Unsubscribe(ctx context.Context, channel string) error {
	l.activeMu.RLock()
	_, listening := l.active[channel]
	l.activeMu.RUnlock()
	if !listening || !l.started.Load() {
		return nil
	}

	if err := l.exec(ctx, "UNLISTEN", channel); err != nil {
		return err
	}
	l.activeMu.Lock()
	delete(l.active, channel)
	l.activeMu.Unlock()
	return nil
}

// exec queues a LISTEN/UNLISTEN through the receive loop and waits for the
// outcome. Channel names carry ':' separators, so they are always quoted.
func (l *NotifyListener) exec(ctx context.Context, verb, channel string) error {
	if !l.started.Load() {
		return fmt.Errorf("LISTEN connection not established")
	}

	s := stmt{
		sql:  verb + " " + pgx.Identifier{channel}.Sanitize(),
		done: make(chan error, 1),
	}
	select {
	case l.stmts <- s:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-s.done:
		if err != nil {
			return fmt.Errorf("%s %s failed: %w", verb, channel, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run alternates between flushing queued statements and waiting for
// notifications, in short slices so neither starves the other.
func (l *NotifyListener) run(ctx context.Context) {
	for ctx.Err() == nil {
		l.flushStmts(ctx)

		conn := l.current()
		if conn == nil {
			l.redial(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, waitSlice)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		switch {
		case err == nil:
			l.manager.Broadcast(notification.Channel, []byte(notification.Payload))
		case ctx.Err() != nil:
			return
		case waitCtx.Err() != nil:
			// Slice expired without a notification; flush and go again.
		default:
			slog.Error("NOTIFY receive error", "error", err)
			l.redial(ctx)
		}
	}
}

func (l *NotifyListener) flushStmts(ctx context.Context) {
	for {
		select {
		case s := <-l.stmts:
			conn := l.current()
			if conn == nil {
				s.done <- fmt.Errorf("LISTEN connection not established")
				continue
			}
			_, err := conn.Exec(ctx, s.sql)
			s.done <- err
		default:
			return
		}
	}
}

func (l *NotifyListener) current() *pgx.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// redial replaces a dead connection, backing off exponentially, then
// re-issues LISTEN for every active channel so no subscriber notices the
// outage beyond the gap (which catchup covers).
func (l *NotifyListener) redial(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}

	for backoff := time.Second; ; backoff = min(backoff*2, 30*time.Second) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "backoff", backoff)
			continue
		}
		l.conn = conn

		l.activeMu.RLock()
		for channel := range l.active {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
				slog.Error("Re-LISTEN failed", "channel", channel, "error", err)
			}
		}
		l.activeMu.RUnlock()

		slog.Info("NotifyListener reconnected")
		return
	}
}

// Stop signals the receive loop to exit, waits for it, then closes the
// connection.
func (l *NotifyListener) Stop(ctx context.Context) {
	l.started.Store(false)

	if l.stopLoop != nil {
		l.stopLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
