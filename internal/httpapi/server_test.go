package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/YassineElZaart/learn-chess/internal/archive"
	"github.com/YassineElZaart/learn-chess/internal/hub"
	"github.com/YassineElZaart/learn-chess/internal/render"
	"github.com/YassineElZaart/learn-chess/internal/rules"
	"github.com/YassineElZaart/learn-chess/internal/session"
	"github.com/YassineElZaart/learn-chess/internal/store"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

type fixture struct {
	srv     *httptest.Server
	hub     *hub.Hub
	archive *archive.Archive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.OpenDB(context.Background(), store.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	arch := archive.New(db)
	require.NoError(t, arch.Migrate(context.Background()))

	oracle := rules.New()
	m := session.New(store.NewMemory(), oracle, session.WithResultSink(arch))
	h := hub.New(hub.WithPingInterval(0))
	api := New(Deps{Machine: m, Oracle: oracle, Hub: h, Renderer: render.New(render.WithSquareSize(24)), Archive: arch})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return &fixture{srv: srv, hub: h, archive: arch}
}

func (f *fixture) do(t *testing.T, method, path, user, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderUserName, strings.ToUpper(user[:1])+user[1:])
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (f *fixture) create(t *testing.T, user, body string) sessiondto.State {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/games", user, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var st sessiondto.State
	decodeJSON(t, resp, &st)
	return st
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/games", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	st := f.create(t, "alice", "")
	require.Equal(t, "waiting", st.Status)
	require.Equal(t, "Alice", *st.WhiteName)
	require.Nil(t, st.BlackName)

	resp = f.do(t, http.MethodGet, "/games/"+st.ID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got sessiondto.State
	decodeJSON(t, resp, &got)
	require.Equal(t, st.ID, got.ID)

	resp = f.do(t, http.MethodGet, "/games/missing", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body sessiondto.ErrorBody
	decodeJSON(t, resp, &body)
	require.Equal(t, "session_not_found", body.Code)
	require.NotEmpty(t, body.Message)
}

func TestCreateRejectsBadFEN(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/games", "alice", `{"fen":"not a position"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body sessiondto.ErrorBody
	decodeJSON(t, resp, &body)
	require.Equal(t, "invalid_position", body.Code)

	resp = f.do(t, http.MethodPost, "/games", "alice", `{"fen":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAndLegalMoves(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "alice", "")
	second := f.create(t, "alice", `{"fen":"4k3/4p3/8/8/8/8/4P3/4K3 b - - 0 1"}`)
	f.create(t, "carol", "")

	resp := f.do(t, http.MethodGet, "/games", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Games []sessiondto.Summary `json:"games"`
	}
	decodeJSON(t, resp, &list)
	require.Len(t, list.Games, 2)
	ids := []string{list.Games[0].ID, list.Games[1].ID}
	require.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	resp = f.do(t, http.MethodGet, "/games/"+first.ID+"/legal-moves", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var moves struct {
		Moves []rules.LegalMove `json:"moves"`
	}
	decodeJSON(t, resp, &moves)
	require.Len(t, moves.Moves, 20)
}

func dialWS(t *testing.T, f *fixture, id, user string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/games/" + id + "/ws"
	opts := &websocket.DialOptions{}
	if user != "" {
		opts.HTTPHeader = http.Header{HeaderUserID: {user}}
	}
	ws, _, err := websocket.Dial(ctx, url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) sessiondto.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev sessiondto.Event
	require.NoError(t, wsjson.Read(ctx, ws, &ev))
	return ev
}

func send(t *testing.T, ws *websocket.Conn, cmd sessiondto.Command) {
	t.Helper()
	require.NoError(t, wsjson.Write(context.Background(), ws, cmd))
}

func TestWebsocketGame(t *testing.T) {
	f := newFixture(t)
	st := f.create(t, "alice", "")

	alice := dialWS(t, f, st.ID, "alice")
	ev := readEvent(t, alice)
	require.Equal(t, sessiondto.TypeGameState, ev.Type)
	require.Equal(t, "waiting", ev.State.Status)

	bob := dialWS(t, f, st.ID, "bob")
	require.Equal(t, sessiondto.TypeGameState, readEvent(t, bob).Type)

	send(t, bob, sessiondto.Command{Type: sessiondto.TypeJoin})
	for _, ws := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, ws)
		require.Equal(t, sessiondto.TypePlayerJoined, ev.Type)
		require.Equal(t, "in_progress", ev.State.Status)
	}

	send(t, alice, sessiondto.Command{Type: sessiondto.TypeMakeMove, Move: "e2e4"})
	for _, ws := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, ws)
		require.Equal(t, sessiondto.TypeMoveMade, ev.Type)
		require.Equal(t, "e4", ev.Move)
	}

	// errors go to the sender only
	send(t, alice, sessiondto.Command{Type: sessiondto.TypeMakeMove, Move: "d4"})
	ev = readEvent(t, alice)
	require.Equal(t, sessiondto.TypeError, ev.Type)
	require.Equal(t, "not_your_turn", ev.Code)

	require.NoError(t, alice.Write(context.Background(), websocket.MessageText, []byte("nope")))
	ev = readEvent(t, alice)
	require.Equal(t, sessiondto.TypeError, ev.Type)
	require.Equal(t, "malformed_command", ev.Code)

	send(t, bob, sessiondto.Command{Type: sessiondto.TypeResign})
	for _, ws := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, ws)
		require.Equal(t, sessiondto.TypeGameEnded, ev.Type, "bob must not have seen alice's errors")
		require.Equal(t, sessiondto.ReasonResignation, ev.Reason)
		require.Equal(t, "white", ev.Winner)
	}

	resp := f.do(t, http.MethodGet, "/games/"+st.ID+"/pgn", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "[Result \"1-0\"]")
	require.True(t, strings.HasSuffix(buf.String(), "1. e4 1-0"), buf.String())
}

func TestSpectatorCannotMove(t *testing.T) {
	f := newFixture(t)
	st := f.create(t, "alice", "")
	watcher := dialWS(t, f, st.ID, "")
	ev := readEvent(t, watcher)
	require.Equal(t, sessiondto.TypeGameState, ev.Type)

	send(t, watcher, sessiondto.Command{Type: sessiondto.TypeResign})
	ev = readEvent(t, watcher)
	require.Equal(t, "not_a_player", ev.Code)

	send(t, watcher, sessiondto.Command{Type: sessiondto.TypeJoin})
	ev = readEvent(t, watcher)
	require.Equal(t, "not_a_player", ev.Code)

	send(t, watcher, sessiondto.Command{Type: sessiondto.TypeRequestState})
	ev = readEvent(t, watcher)
	require.Equal(t, sessiondto.TypeGameState, ev.Type)
	require.Nil(t, ev.State.BlackName, "spectators never take a seat")
}

func TestWebsocketUnknownSession(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/games/nope/ws", "alice", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBoardPNG(t *testing.T) {
	f := newFixture(t)
	st := f.create(t, "alice", "")

	resp := f.do(t, http.MethodGet, "/games/"+st.ID+"/board.png?flip=1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	_, err := png.Decode(resp.Body)
	require.NoError(t, err)

	resp = f.do(t, http.MethodGet, "/games/missing/board.png", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPGNMissing(t *testing.T) {
	f := newFixture(t)
	st := f.create(t, "alice", "")
	resp := f.do(t, http.MethodGet, "/games/"+st.ID+"/pgn", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
