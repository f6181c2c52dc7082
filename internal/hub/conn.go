package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

// Handler processes one decoded client command.
type Handler func(ctx context.Context, c *Conn, cmd sessiondto.Command)

// Conn is one websocket attached to a session.
type Conn struct {
	ID        string
	SessionID string
	ActorID   string

	hub  *Hub
	ws   *websocket.Conn
	send chan sessiondto.Event

	done     chan struct{}
	stopOnce sync.Once
}

// Send queues ev for this connection only.
func (c *Conn) Send(ev sessiondto.Event) bool {
	return c.enqueue(ev)
}

func (c *Conn) enqueue(ev sessiondto.Event) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Conn) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Conn) closeWS(code websocket.StatusCode, reason string) {
	if c.ws != nil {
		_ = c.ws.Close(code, reason)
	}
}

// Serve runs the read loop until the peer goes away or ctx ends, with the
// writer and ping loop alongside. It detaches c before returning.
func (c *Conn) Serve(ctx context.Context, handle Handler) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		c.hub.Detach(c)
		wg.Wait()
		c.closeWS(websocket.StatusNormalClosure, "")
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(ctx)
	}()

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_failed", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			c.Send(malformed("expected a text frame"))
			continue
		}
		var cmd sessiondto.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.Send(malformed("invalid JSON"))
			continue
		}
		handle(ctx, c, cmd)
	}
}

func malformed(msg string) sessiondto.Event {
	return sessiondto.Event{Type: sessiondto.TypeError, Code: string(domain.ErrMalformedCommand), Message: msg}
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			// flush what is already queued, then stop
			for {
				select {
				case ev := <-c.send:
					if c.write(ctx, ev) != nil {
						return
					}
				default:
					return
				}
			}
		case ev := <-c.send:
			if err := c.write(ctx, ev); err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn_id", c.ID), zap.Error(err))
				c.closeWS(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (c *Conn) write(ctx context.Context, ev sessiondto.Event) error {
	wctx, cancel := context.WithTimeout(ctx, c.hub.writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, c.ws, ev)
}

func (c *Conn) pingLoop(ctx context.Context) {
	if c.hub.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(c.hub.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Info("ws_ping_timeout", zap.String("conn_id", c.ID), zap.String("session_id", c.SessionID))
				c.closeWS(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}
