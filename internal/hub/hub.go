// Package hub fans session deliveries out to websocket connections.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/internal/session"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

// Hub is a registry of connections keyed by session id.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn // session id -> conn id -> conn

	sendBuffer   int
	pingInterval time.Duration
	writeTimeout time.Duration
	readLimit    int64
}

type Option func(*Hub)

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) { h.pingInterval = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		rooms:        make(map[string]map[string]*Conn),
		sendBuffer:   32,
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		readLimit:    8 << 10,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Attach registers ws for sessionID on behalf of actorID.
func (h *Hub) Attach(sessionID, actorID string, ws *websocket.Conn) *Conn {
	c := &Conn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ActorID:   actorID,
		hub:       h,
		ws:        ws,
		send:      make(chan sessiondto.Event, h.sendBuffer),
		done:      make(chan struct{}),
	}
	if ws != nil {
		ws.SetReadLimit(h.readLimit)
	}
	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[string]*Conn)
		h.rooms[sessionID] = room
	}
	room[c.ID] = c
	h.mu.Unlock()
	obslog.L().Debug("ws_attached", zap.String("session_id", sessionID), zap.String("conn_id", c.ID), zap.String("actor_id", actorID))
	return c
}

// Detach removes c and stops its writer. It is safe to call more than once.
func (h *Hub) Detach(c *Conn) {
	h.mu.Lock()
	if room, ok := h.rooms[c.SessionID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, c.SessionID)
		}
	}
	h.mu.Unlock()
	c.stop()
}

// Count returns the number of connections attached to sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Publish routes deliveries. Room deliveries go to every connection of the
// session; actor deliveries go to origin when it belongs to the session,
// otherwise to every connection of that actor. Connections whose queue is
// full are dropped.
func (h *Hub) Publish(deliveries []session.Delivery, origin *Conn) {
	var slow []*Conn
	h.mu.RLock()
	for _, d := range deliveries {
		for _, c := range h.targets(d, origin) {
			if !c.enqueue(d.Event) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		obslog.L().Warn("ws_slow_consumer", zap.String("session_id", c.SessionID), zap.String("conn_id", c.ID))
		h.Detach(c)
		c.closeWS(websocket.StatusPolicyViolation, "slow consumer")
	}
}

// targets must be called with h.mu held.
func (h *Hub) targets(d session.Delivery, origin *Conn) []*Conn {
	room := h.rooms[d.SessionID]
	if d.Audience == session.AudienceActor {
		if origin != nil && origin.SessionID == d.SessionID {
			if _, ok := room[origin.ID]; ok {
				return []*Conn{origin}
			}
			return nil
		}
		var out []*Conn
		for _, c := range room {
			if c.ActorID == d.ActorID {
				out = append(out, c)
			}
		}
		return out
	}
	out := make([]*Conn, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

// Close disconnects every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Conn
	for _, room := range h.rooms {
		for _, c := range room {
			all = append(all, c)
		}
	}
	h.rooms = make(map[string]map[string]*Conn)
	h.mu.Unlock()
	for _, c := range all {
		c.stop()
		c.closeWS(websocket.StatusGoingAway, "server shutdown")
	}
}
