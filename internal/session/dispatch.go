package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

// Command is one client message bound to a session and an actor.
type Command struct {
	Type        string
	SessionID   string
	Actor       domain.Participant
	Move        string
	Accepted    bool
	RequesterID string
}

// CommandFrom binds a decoded client message to a session and actor.
func CommandFrom(sessionID string, actor domain.Participant, msg sessiondto.Command) Command {
	return Command{
		Type:        msg.Type,
		SessionID:   sessionID,
		Actor:       actor,
		Move:        msg.Move,
		Accepted:    msg.Accepted,
		RequesterID: msg.RequesterID,
	}
}

// Dispatch routes cmd to its operation. Failures never reach the room: they
// come back as a single error delivery addressed to the actor.
func (m *Machine) Dispatch(ctx context.Context, cmd Command) []Delivery {
	out, err := m.dispatch(ctx, cmd)
	if err != nil {
		return []Delivery{m.ErrorDelivery(cmd.SessionID, cmd.Actor.ID, err)}
	}
	return out
}

func (m *Machine) dispatch(ctx context.Context, cmd Command) ([]Delivery, error) {
	switch strings.TrimSpace(cmd.Type) {
	case sessiondto.TypeJoin, sessiondto.TypeJoinGame:
		return m.Join(ctx, cmd.SessionID, cmd.Actor)
	case sessiondto.TypeMakeMove:
		return m.Move(ctx, cmd.SessionID, cmd.Actor, cmd.Move)
	case sessiondto.TypeResign:
		return m.Resign(ctx, cmd.SessionID, cmd.Actor)
	case sessiondto.TypeOfferDraw:
		return m.OfferDraw(ctx, cmd.SessionID, cmd.Actor)
	case sessiondto.TypeAcceptDraw:
		return m.AcceptDraw(ctx, cmd.SessionID, cmd.Actor)
	case sessiondto.TypeRequestTakeback:
		return m.RequestTakeback(ctx, cmd.SessionID, cmd.Actor)
	case sessiondto.TypeTakebackResponse:
		return m.RespondTakeback(ctx, cmd.SessionID, cmd.Actor, cmd.Accepted, cmd.RequesterID)
	case sessiondto.TypeRequestState:
		s, err := m.State(ctx, cmd.SessionID)
		if err != nil {
			return nil, err
		}
		return []Delivery{StateDelivery(s, cmd.Actor.ID)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown command type %q", domain.ErrMalformedCommand, cmd.Type)
	}
}

// StateDelivery addresses a game_state event to one actor.
func StateDelivery(s *domain.Session, actorID string) Delivery {
	return toActor(s.ID, actorID, sessiondto.Event{
		Type:  sessiondto.TypeGameState,
		State: Snapshot(s),
	})
}

// ErrorDelivery renders err for the actor that caused it.
func (m *Machine) ErrorDelivery(sessionID, actorID string, err error) Delivery {
	code := domain.Code(err)
	return toActor(sessionID, actorID, sessiondto.Event{
		Type:    sessiondto.TypeError,
		Code:    string(code),
		Message: m.errorMessage(code),
	})
}

func (m *Machine) errorMessage(code domain.Error) string {
	if m.messages != nil {
		if msg := m.messages.ErrorMessage(code); msg != "" {
			return msg
		}
	}
	return strings.ReplaceAll(string(code), "_", " ")
}
