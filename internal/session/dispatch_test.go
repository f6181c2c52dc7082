package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

type staticMessages map[domain.Error]string

func (s staticMessages) ErrorMessage(code domain.Error) string { return s[code] }

func TestDispatch_RoutesCommands(t *testing.T) {
	m := newTestMachine(t, nil)
	ctx := context.Background()
	s, err := m.Create(ctx, CreateInput{})
	require.NoError(t, err)

	out := m.Dispatch(ctx, CommandFrom(s.ID, alice, sessiondto.Command{Type: sessiondto.TypeJoinGame}))
	require.Equal(t, sessiondto.TypePlayerJoined, out[0].Event.Type)
	out = m.Dispatch(ctx, CommandFrom(s.ID, bob, sessiondto.Command{Type: sessiondto.TypeJoin}))
	require.Equal(t, sessiondto.TypePlayerJoined, out[0].Event.Type)
	require.Equal(t, "in_progress", out[0].Event.State.Status)

	out = m.Dispatch(ctx, CommandFrom(s.ID, alice, sessiondto.Command{Type: sessiondto.TypeMakeMove, Move: "e2e4"}))
	require.Equal(t, sessiondto.TypeMoveMade, out[0].Event.Type)
	require.Equal(t, []sessiondto.HistoryEntry{{Number: 1, Notation: "e4"}}, out[0].Event.State.MoveHistory)

	out = m.Dispatch(ctx, CommandFrom(s.ID, alice, sessiondto.Command{Type: sessiondto.TypeRequestTakeback}))
	require.Equal(t, sessiondto.TypeTakebackRequested, out[0].Event.Type)
	out = m.Dispatch(ctx, CommandFrom(s.ID, bob, sessiondto.Command{Type: sessiondto.TypeTakebackResponse, Accepted: true, RequesterID: "alice"}))
	require.Equal(t, sessiondto.TypeTakebackAccepted, out[0].Event.Type)
	require.Empty(t, out[0].Event.State.MoveHistory)

	out = m.Dispatch(ctx, CommandFrom(s.ID, eve, sessiondto.Command{Type: sessiondto.TypeRequestState}))
	require.Len(t, out, 1)
	require.Equal(t, AudienceActor, out[0].Audience)
	require.Equal(t, "eve", out[0].ActorID)
	require.Equal(t, sessiondto.TypeGameState, out[0].Event.Type)

	out = m.Dispatch(ctx, CommandFrom(s.ID, bob, sessiondto.Command{Type: sessiondto.TypeOfferDraw}))
	require.Equal(t, sessiondto.TypeDrawOffered, out[0].Event.Type)
	out = m.Dispatch(ctx, CommandFrom(s.ID, alice, sessiondto.Command{Type: sessiondto.TypeAcceptDraw}))
	require.Equal(t, sessiondto.TypeGameEnded, out[0].Event.Type)
	require.Equal(t, "draw", *out[0].Event.State.Winner)
}

func TestDispatch_ErrorsGoToActorOnly(t *testing.T) {
	m := newTestMachine(t, nil, WithMessages(staticMessages{domain.ErrNotYourTurn: "Not your turn"}))
	id := startGame(t, m, "")
	ctx := context.Background()

	out := m.Dispatch(ctx, Command{Type: sessiondto.TypeMakeMove, SessionID: id, Actor: bob, Move: "e5"})
	require.Len(t, out, 1)
	require.Equal(t, AudienceActor, out[0].Audience)
	require.Equal(t, "bob", out[0].ActorID)
	require.Equal(t, sessiondto.TypeError, out[0].Event.Type)
	require.Equal(t, "not_your_turn", out[0].Event.Code)
	require.Equal(t, "Not your turn", out[0].Event.Message)
	require.Nil(t, out[0].Event.State)

	out = m.Dispatch(ctx, Command{Type: "castle_everything", SessionID: id, Actor: alice})
	require.Equal(t, "malformed_command", out[0].Event.Code)
	require.Equal(t, "malformed command", out[0].Event.Message)

	out = m.Dispatch(ctx, Command{Type: sessiondto.TypeResign, SessionID: "nope", Actor: alice})
	require.Equal(t, "session_not_found", out[0].Event.Code)
}

func TestLockTableReleases(t *testing.T) {
	lt := newLockTable()
	release := lt.acquire("a")
	require.Equal(t, 1, lt.size())
	done := make(chan struct{})
	go func() {
		r := lt.acquire("a")
		r()
		close(done)
	}()
	other := lt.acquire("b")
	require.Equal(t, 2, lt.size())
	other()
	release()
	<-done
	require.Equal(t, 0, lt.size())
}

func TestSnapshotShape(t *testing.T) {
	s := domain.NewSession("g1", domain.StandardStartFEN, domain.White, fixedClock())
	s.White = &domain.Participant{ID: "alice"}
	st := Snapshot(s)
	require.Equal(t, "alice", *st.WhiteName, "missing names fall back to the id")
	require.Nil(t, st.BlackName)
	require.Nil(t, st.Winner)
	require.False(t, st.Check)
	require.NotNil(t, st.MoveHistory)
}
