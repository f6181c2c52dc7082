package session

import (
	"strings"

	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

// Audience selects who receives a delivery.
type Audience string

const (
	// AudienceRoom is every connection attached to the session.
	AudienceRoom Audience = "room"
	// AudienceActor is only the connection that sent the command.
	AudienceActor Audience = "actor"
)

// Delivery pairs an event with its audience. The machine never performs I/O
// itself; a transport consumes deliveries.
type Delivery struct {
	Audience  Audience
	SessionID string
	ActorID   string
	Event     sessiondto.Event
}

func toRoom(s *domain.Session, ev sessiondto.Event) Delivery {
	return Delivery{Audience: AudienceRoom, SessionID: s.ID, Event: ev}
}

func toActor(sessionID, actorID string, ev sessiondto.Event) Delivery {
	return Delivery{Audience: AudienceActor, SessionID: sessionID, ActorID: actorID, Event: ev}
}

// Snapshot converts a session into the state shape sent to clients.
func Snapshot(s *domain.Session) *sessiondto.State {
	if s == nil {
		return nil
	}
	st := &sessiondto.State{
		ID:          s.ID,
		Position:    s.CurrentFEN,
		Status:      string(s.Status),
		SideToMove:  string(s.SideToMove),
		WhiteName:   displayName(s.White),
		BlackName:   displayName(s.Black),
		Transcript:  s.Transcript,
		MoveHistory: make([]sessiondto.HistoryEntry, 0, s.Moves.Len()),
	}
	for _, e := range s.Moves {
		st.MoveHistory = append(st.MoveHistory, sessiondto.HistoryEntry{Number: e.Seq, Notation: e.Notation})
	}
	if s.Winner != domain.WinnerNone {
		w := string(s.Winner)
		st.Winner = &w
	}
	if last, ok := s.Moves.Last(); ok {
		st.Check = strings.HasSuffix(last.Notation, "+") || strings.HasSuffix(last.Notation, "#")
	}
	return st
}

// Summarize converts a session into a game list row.
func Summarize(s *domain.Session) sessiondto.Summary {
	out := sessiondto.Summary{
		ID:        s.ID,
		Status:    string(s.Status),
		WhiteName: displayName(s.White),
		BlackName: displayName(s.Black),
		Moves:     s.Moves.Len(),
		UpdatedAt: s.UpdatedAt.UnixMilli(),
	}
	if s.Winner != domain.WinnerNone {
		w := string(s.Winner)
		out.Winner = &w
	}
	return out
}

func displayName(p *domain.Participant) *string {
	if p == nil {
		return nil
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = p.ID
	}
	return &name
}
