package webserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/obslog"
)

const (
	clientSendBuffer = 32
	writeTimeout     = 5 * time.Second
)

// client is one participant socket
type client struct {
	conn      *websocket.Conn
	sessionID string
	identity  string
	color     core.Color

	send      chan core.Event
	done      chan struct{}
	closeOnce sync.Once

	seen uint64 // newest state version written, owned by writeLoop
}

func newClient(conn *websocket.Conn, sessionID, identity string, color core.Color) *client {
	return &client{
		conn:      conn,
		sessionID: sessionID,
		identity:  identity,
		color:     color,
		send:      make(chan core.Event, clientSendBuffer),
		done:      make(chan struct{}),
	}
}

// enqueue reports false when the client is gone or too slow to keep up
func (c *client) enqueue(ev core.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			if !c.current(ev) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.conn, ev)
			cancel()
			if err != nil {
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
			if ev.Type == core.EventSessionRemoved {
				c.close(websocket.StatusNormalClosure, "session removed")
				return
			}
		}
	}
}

// current reports whether ev carries no state or a state at least as new as
// the last one written. Events are published after the session lock is
// released, so two transitions can reach the hub out of order.
func (c *client) current(ev core.Event) bool {
	if ev.State == nil {
		return true
	}
	if ev.Version < c.seen {
		return false
	}
	c.seen = ev.Version
	return true
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close(code, reason)
	})
}

// Hub tracks participant sockets per session and fans events out to them
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}
	closed   bool
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[*client]struct{})}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.sessions[c.sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.sessions[c.sessionID] = set
	}
	set[c] = struct{}{}
	return true
}

// unregister drops c and reports whether it was the identity's last socket
// in the session. Sockets closed by Close report false.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set := h.sessions[c.sessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.sessions, c.sessionID)
		return true
	}
	for other := range set {
		if other.identity == c.identity {
			return false
		}
	}
	return true
}

// Clients returns the number of sockets attached to a session
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Deliver sends ev to every socket of its session. Sockets that cannot keep
// up are closed.
func (h *Hub) Deliver(_ context.Context, ev core.Event) error {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.sessions[ev.SessionID]))
	for c := range h.sessions[ev.SessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(ev) {
			obslog.L().Warn("ws_client_dropped",
				zap.String("session", c.sessionID),
				zap.Stringer("color", c.color))
			c.close(websocket.StatusPolicyViolation, "too slow")
		}
	}
	return nil
}

// Close disconnects every socket
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*client
	for _, set := range h.sessions {
		for c := range set {
			all = append(all, c)
		}
	}
	h.sessions = make(map[string]map[*client]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, c := range all {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}
