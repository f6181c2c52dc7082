package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/YassineElZaart/learn-chess/internal/session"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

func drain(c *Conn) []sessiondto.Event {
	var out []sessiondto.Event
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishRouting(t *testing.T) {
	h := New()
	alice := h.Attach("g1", "alice", nil)
	bob := h.Attach("g1", "bob", nil)
	other := h.Attach("g2", "alice", nil)
	require.Equal(t, 2, h.Count("g1"))

	h.Publish([]session.Delivery{
		{Audience: session.AudienceRoom, SessionID: "g1", Event: sessiondto.Event{Type: sessiondto.TypeMoveMade, Move: "e4"}},
		{Audience: session.AudienceActor, SessionID: "g1", ActorID: "bob", Event: sessiondto.Event{Type: sessiondto.TypeError}},
	}, bob)

	require.Len(t, drain(alice), 1)
	got := drain(bob)
	require.Len(t, got, 2)
	require.Equal(t, sessiondto.TypeError, got[1].Type)
	require.Empty(t, drain(other), "other sessions never see room events")

	// without an origin connection, actor deliveries reach that actor's connections
	h.Publish([]session.Delivery{
		{Audience: session.AudienceActor, SessionID: "g1", ActorID: "alice", Event: sessiondto.Event{Type: sessiondto.TypeGameState}},
	}, nil)
	require.Len(t, drain(alice), 1)
	require.Empty(t, drain(bob))
	require.Empty(t, drain(other))
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h := New(WithSendBuffer(1))
	slow := h.Attach("g1", "alice", nil)
	fast := h.Attach("g1", "bob", nil)

	ev := []session.Delivery{{Audience: session.AudienceRoom, SessionID: "g1", Event: sessiondto.Event{Type: sessiondto.TypeMoveMade}}}
	h.Publish(ev, nil)
	drain(fast)
	h.Publish(ev, nil)

	require.Equal(t, 1, h.Count("g1"))
	select {
	case <-slow.done:
	default:
		t.Fatalf("slow connection should be stopped")
	}
	require.Len(t, drain(fast), 1)

	h.Detach(fast)
	h.Detach(fast)
	require.Equal(t, 0, h.Count("g1"))
}

func newServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c := h.Attach("g1", r.URL.Query().Get("actor"), ws)
		c.Send(sessiondto.Event{Type: sessiondto.TypeGameState})
		c.Serve(r.Context(), func(ctx context.Context, c *Conn, cmd sessiondto.Command) {
			h.Publish([]session.Delivery{{
				Audience:  session.AudienceRoom,
				SessionID: c.SessionID,
				Event:     sessiondto.Event{Type: sessiondto.TypeMoveMade, Move: cmd.Move, ActorID: c.ActorID},
			}}, c)
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, actor string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?actor=" + actor
	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) sessiondto.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev sessiondto.Event
	require.NoError(t, wsjson.Read(ctx, ws, &ev))
	return ev
}

func TestServeOverWebsocket(t *testing.T) {
	h := New(WithPingInterval(0))
	srv := newServer(t, h)

	a := dial(t, srv, "alice")
	require.Equal(t, sessiondto.TypeGameState, read(t, a).Type)
	b := dial(t, srv, "bob")
	require.Equal(t, sessiondto.TypeGameState, read(t, b).Type)

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, a, sessiondto.Command{Type: sessiondto.TypeMakeMove, Move: "e4"}))
	for _, ws := range []*websocket.Conn{a, b} {
		ev := read(t, ws)
		require.Equal(t, sessiondto.TypeMoveMade, ev.Type)
		require.Equal(t, "e4", ev.Move)
		require.Equal(t, "alice", ev.ActorID)
	}

	require.NoError(t, a.Write(ctx, websocket.MessageText, []byte("{not json")))
	ev := read(t, a)
	require.Equal(t, sessiondto.TypeError, ev.Type)
	require.Equal(t, "malformed_command", ev.Code)
	require.Equal(t, "invalid JSON", ev.Message)

	// the connection survives a bad frame
	require.NoError(t, wsjson.Write(ctx, a, sessiondto.Command{Type: sessiondto.TypeMakeMove, Move: "d4"}))
	require.Equal(t, "d4", read(t, a).Move)

	require.NoError(t, a.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return h.Count("g1") == 1 }, 5*time.Second, 10*time.Millisecond)
}
