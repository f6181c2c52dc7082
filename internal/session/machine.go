// Package session implements the live game state machine. Every mutating
// command runs under a per-session lock and commits through Store with a
// version check.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/internal/rules"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

// Machine applies commands to sessions.
type Machine struct {
	store    Store
	oracle   rules.Oracle
	locks    *lockTable
	sinks    []ResultSink
	messages Messages
	strict   bool
	now      func() time.Time
	newID    func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithResultSink registers a sink called after every terminal transition.
func WithResultSink(s ResultSink) Option {
	return func(m *Machine) {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
}

// WithMessages sets the renderer used for error deliveries.
func WithMessages(msgs Messages) Option {
	return func(m *Machine) { m.messages = msgs }
}

// WithStrictNegotiation requires a pending offer before a draw is accepted
// and a pending request before a takeback is answered.
func WithStrictNegotiation(on bool) Option {
	return func(m *Machine) { m.strict = on }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator used for new session ids.
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// New builds a Machine over store and oracle.
func New(store Store, oracle rules.Oracle, opts ...Option) *Machine {
	m := &Machine{
		store:  store,
		oracle: oracle,
		locks:  newLockTable(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateInput describes a new session. An empty StartingFEN means the
// standard initial position. A non-nil Creator takes the white seat.
type CreateInput struct {
	StartingFEN string
	Creator     *domain.Participant
}

// Create stores a new waiting session.
func (m *Machine) Create(ctx context.Context, in CreateInput) (*domain.Session, error) {
	fen := strings.TrimSpace(in.StartingFEN)
	if fen == "" {
		fen = domain.StandardStartFEN
	}
	status, err := m.oracle.Status(fen)
	if err != nil {
		return nil, err
	}
	if status.Checkmate || status.Stalemate {
		return nil, fmt.Errorf("%w: position is already decided", domain.ErrInvalidPosition)
	}

	s := domain.NewSession(m.newID(), fen, status.SideToMove, m.now().UTC())
	if in.Creator != nil && strings.TrimSpace(in.Creator.ID) != "" {
		creator := *in.Creator
		s.White = &creator
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	obslog.L().Info("session_create",
		zap.String("session_id", s.ID),
		zap.String("start_side", string(status.SideToMove)),
		zap.Bool("creator_seated", s.White != nil),
	)
	return s.Clone(), nil
}

// State returns a consistent snapshot without taking the session lock.
func (m *Machine) State(ctx context.Context, id string) (*domain.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrSessionNotFound
	}
	return m.store.Load(ctx, id)
}

// List returns the sessions in which playerID holds a seat, newest first.
func (m *Machine) List(ctx context.Context, playerID string, limit int) ([]*domain.Session, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, nil
	}
	return m.store.ListByPlayer(ctx, playerID, limit)
}

// LegalMoves lists the moves available in the session's current position.
func (m *Machine) LegalMoves(ctx context.Context, id string) ([]rules.LegalMove, error) {
	s, err := m.State(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != domain.StatusInProgress && s.Status != domain.StatusWaiting {
		return []rules.LegalMove{}, nil
	}
	return m.oracle.LegalMoves(s.CurrentFEN)
}

// Join seats actor in the first open seat, white before black. The session
// starts once both seats are filled.
func (m *Machine) Join(ctx context.Context, id string, actor domain.Participant) ([]Delivery, error) {
	return m.run(ctx, "join", id, actor, func(s *domain.Session) (step, error) {
		if _, seated := s.SeatOf(actor.ID); seated {
			return step{}, domain.ErrAlreadySeated
		}
		if s.Full() {
			return step{}, domain.ErrSessionFull
		}
		if s.Status != domain.StatusWaiting {
			return step{}, domain.ErrGameNotWaiting
		}
		seat := actor
		if s.White == nil {
			s.White = &seat
		} else {
			s.Black = &seat
		}
		if s.Full() {
			s.Status = domain.StatusInProgress
		}
		return step{
			commit: true,
			out: []Delivery{toRoom(s, sessiondto.Event{
				Type:      sessiondto.TypePlayerJoined,
				ActorID:   actor.ID,
				ActorName: actor.Name,
				State:     Snapshot(s),
			})},
		}, nil
	})
}

// Move resolves moveText (coordinate form first, then algebraic) and applies it.
func (m *Machine) Move(ctx context.Context, id string, actor domain.Participant, moveText string) ([]Delivery, error) {
	return m.run(ctx, "move", id, actor, func(s *domain.Session) (step, error) {
		if s.Status != domain.StatusInProgress {
			return step{}, domain.ErrGameNotInProgress
		}
		side, seated := s.SeatOf(actor.ID)
		if !seated {
			return step{}, domain.ErrNotAPlayer
		}
		if side != s.SideToMove {
			return step{}, domain.ErrNotYourTurn
		}
		text := strings.TrimSpace(moveText)
		if text == "" {
			return step{}, fmt.Errorf("%w: no move provided", domain.ErrMalformedCommand)
		}

		res, err := m.oracle.Resolve(s.CurrentFEN, text)
		if err != nil {
			return step{}, fmt.Errorf("resolve %q: %w", text, err)
		}
		if !res.Resolved {
			switch res.Reason {
			case rules.ReasonAmbiguous:
				return step{}, fmt.Errorf("%w: %q", domain.ErrAmbiguousMove, text)
			case rules.ReasonEmpty:
				return step{}, fmt.Errorf("%w: no move provided", domain.ErrMalformedCommand)
			default:
				return step{}, fmt.Errorf("%w: %q", domain.ErrIllegalMove, text)
			}
		}
		if res.Mover != side {
			return step{}, fmt.Errorf("%w: record says %s to move, position says %s", domain.ErrInvariant, side, res.Mover)
		}

		entry := domain.MoveEntry{
			Seq:          s.Moves.Len() + 1,
			Notation:     res.Notation,
			ResultingFEN: res.Position,
			PlayedAt:     m.now().UTC(),
		}
		if err := s.Moves.Append(entry); err != nil {
			return step{}, err
		}
		s.CurrentFEN = res.Position
		s.SideToMove = side.Opposite()
		s.Transcript = domain.BuildTranscript(s.StartSide(), s.Moves.Notations())
		s.PendingDraw = ""
		s.PendingTakeback = ""

		reason := ""
		switch {
		case res.Checkmate:
			s.Status = domain.StatusCompleted
			s.Winner = domain.WinnerOf(side)
			reason = sessiondto.ReasonCheckmate
		case res.Stalemate:
			s.Status = domain.StatusDraw
			s.Winner = domain.WinnerDraw
			reason = sessiondto.ReasonStalemate
		}

		state := Snapshot(s)
		out := []Delivery{toRoom(s, sessiondto.Event{
			Type:    sessiondto.TypeMoveMade,
			Move:    res.Notation,
			ActorID: actor.ID,
			State:   state,
		})}
		if reason != "" {
			out = append(out, toRoom(s, sessiondto.Event{
				Type:   sessiondto.TypeGameEnded,
				Reason: reason,
				Winner: string(s.Winner),
				State:  state,
			}))
		}
		return step{commit: true, out: out, reason: reason}, nil
	})
}

// Resign ends the game in favour of the actor's opponent.
func (m *Machine) Resign(ctx context.Context, id string, actor domain.Participant) ([]Delivery, error) {
	return m.run(ctx, "resign", id, actor, func(s *domain.Session) (step, error) {
		side, err := m.seated(s, actor)
		if err != nil {
			return step{}, err
		}
		s.Status = domain.StatusResigned
		s.Winner = domain.WinnerOf(side.Opposite())
		s.PendingDraw = ""
		s.PendingTakeback = ""
		return step{
			commit: true,
			reason: sessiondto.ReasonResignation,
			out: []Delivery{toRoom(s, sessiondto.Event{
				Type:    sessiondto.TypeGameEnded,
				Reason:  sessiondto.ReasonResignation,
				Winner:  string(s.Winner),
				ActorID: actor.ID,
				State:   Snapshot(s),
			})},
		}, nil
	})
}

// OfferDraw notifies the room. Only strict negotiation records the offer.
func (m *Machine) OfferDraw(ctx context.Context, id string, actor domain.Participant) ([]Delivery, error) {
	return m.run(ctx, "offer_draw", id, actor, func(s *domain.Session) (step, error) {
		if _, err := m.seated(s, actor); err != nil {
			return step{}, err
		}
		st := step{out: []Delivery{toRoom(s, sessiondto.Event{
			Type:      sessiondto.TypeDrawOffered,
			ActorID:   actor.ID,
			ActorName: actor.Name,
		})}}
		if m.strict {
			s.PendingDraw = actor.ID
			st.commit = true
		}
		return st, nil
	})
}

// AcceptDraw ends the game as a draw.
func (m *Machine) AcceptDraw(ctx context.Context, id string, actor domain.Participant) ([]Delivery, error) {
	return m.run(ctx, "accept_draw", id, actor, func(s *domain.Session) (step, error) {
		if _, err := m.seated(s, actor); err != nil {
			return step{}, err
		}
		if m.strict && (s.PendingDraw == "" || s.PendingDraw == actor.ID) {
			return step{}, domain.ErrNoPendingOffer
		}
		s.Status = domain.StatusDraw
		s.Winner = domain.WinnerDraw
		s.PendingDraw = ""
		s.PendingTakeback = ""
		return step{
			commit: true,
			reason: sessiondto.ReasonDrawAccepted,
			out: []Delivery{toRoom(s, sessiondto.Event{
				Type:    sessiondto.TypeGameEnded,
				Reason:  sessiondto.ReasonDrawAccepted,
				Winner:  string(s.Winner),
				ActorID: actor.ID,
				State:   Snapshot(s),
			})},
		}, nil
	})
}

// RequestTakeback notifies the room. Only strict negotiation records the request.
func (m *Machine) RequestTakeback(ctx context.Context, id string, actor domain.Participant) ([]Delivery, error) {
	return m.run(ctx, "request_takeback", id, actor, func(s *domain.Session) (step, error) {
		side, err := m.seated(s, actor)
		if err != nil {
			return step{}, err
		}
		st := step{out: []Delivery{toRoom(s, sessiondto.Event{
			Type:      sessiondto.TypeTakebackRequested,
			ActorID:   actor.ID,
			ActorName: actor.Name,
		})}}
		if m.strict {
			if !hasMoveBy(s, side) {
				return step{}, domain.ErrNoMovesToUndo
			}
			s.PendingTakeback = actor.ID
			st.commit = true
		}
		return st, nil
	})
}

// RespondTakeback answers a takeback request made by requesterID. When
// accepted, the requester's most recent move is removed and the position is
// rebuilt by replaying the surviving log from the starting position.
func (m *Machine) RespondTakeback(ctx context.Context, id string, actor domain.Participant, accepted bool, requesterID string) ([]Delivery, error) {
	return m.run(ctx, "takeback_response", id, actor, func(s *domain.Session) (step, error) {
		if _, err := m.seated(s, actor); err != nil {
			return step{}, err
		}
		requesterID = strings.TrimSpace(requesterID)
		if m.strict {
			if requesterID == "" {
				requesterID = s.PendingTakeback
			}
			if s.PendingTakeback == "" || s.PendingTakeback != requesterID || requesterID == actor.ID {
				return step{}, domain.ErrNoPendingOffer
			}
			s.PendingTakeback = ""
		}

		if !accepted {
			return step{
				commit: m.strict,
				out: []Delivery{toRoom(s, sessiondto.Event{
					Type:    sessiondto.TypeTakebackDeclined,
					ActorID: actor.ID,
				})},
			}, nil
		}

		if requesterID == "" {
			return step{}, fmt.Errorf("%w: requester_id is required", domain.ErrMalformedCommand)
		}
		requesterSide, ok := s.SeatOf(requesterID)
		if !ok {
			return step{}, fmt.Errorf("%w: requester %q", domain.ErrNotAPlayer, requesterID)
		}
		if err := m.undo(s, requesterSide); err != nil {
			return step{}, err
		}
		return step{
			commit: true,
			out: []Delivery{toRoom(s, sessiondto.Event{
				Type:    sessiondto.TypeTakebackAccepted,
				ActorID: actor.ID,
				State:   Snapshot(s),
			})},
		}, nil
	})
}

// undo deletes side's most recent entry and rebuilds position, side to move
// and transcript from the starting position. Every surviving entry must
// still replay and be played by the side its sequence number assigns;
// otherwise nothing changes and ErrTakebackDiverged is returned.
func (m *Machine) undo(s *domain.Session, side domain.Color) error {
	survivors := s.Moves.Clone()
	if _, err := survivors.DeleteLast(side, s.StartSide()); err != nil {
		return err
	}
	replayed, err := m.oracle.Replay(s.StartingFEN, survivors.Notations())
	if err != nil {
		if errors.Is(err, rules.ErrReplay) {
			return fmt.Errorf("%w: %v", domain.ErrTakebackDiverged, err)
		}
		return err
	}
	for i, e := range survivors {
		if replayed.Movers[i] != s.SideForSequence(e.Seq) {
			return fmt.Errorf("%w: move %d (%s) would be played by %s", domain.ErrTakebackDiverged, e.Seq, e.Notation, replayed.Movers[i])
		}
	}

	s.Moves = survivors
	s.SideToMove = replayed.SideToMove
	s.CurrentFEN = replayed.Position
	if survivors.Len() == 0 {
		s.CurrentFEN = s.StartingFEN
	}
	s.Transcript = domain.BuildTranscript(s.StartSide(), survivors.Notations())
	return nil
}

// seated checks the common precondition of the negotiation commands.
func (m *Machine) seated(s *domain.Session, actor domain.Participant) (domain.Color, error) {
	side, ok := s.SeatOf(actor.ID)
	if !ok {
		return "", domain.ErrNotAPlayer
	}
	if s.Status != domain.StatusInProgress {
		return "", domain.ErrGameNotInProgress
	}
	return side, nil
}

func hasMoveBy(s *domain.Session, side domain.Color) bool {
	for _, e := range s.Moves {
		if s.SideForSequence(e.Seq) == side {
			return true
		}
	}
	return false
}

// step is what a command body hands back to run.
type step struct {
	commit bool
	out    []Delivery
	reason string // set on terminal transitions
}

// run loads the session under its lock, applies body to a copy and commits
// the copy when body asks for it. Nothing is written when body fails.
func (m *Machine) run(ctx context.Context, op, id string, actor domain.Participant, body func(*domain.Session) (step, error)) ([]Delivery, error) {
	id = strings.TrimSpace(id)
	actor.ID = strings.TrimSpace(actor.ID)
	if id == "" {
		return nil, domain.ErrSessionNotFound
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: missing actor", domain.ErrNotAPlayer)
	}

	s, st, err := m.apply(ctx, id, body)
	if err != nil {
		m.logRejected(op, id, actor.ID, err)
		return nil, err
	}
	obslog.L().Info("session_"+op,
		zap.String("session_id", id),
		zap.String("actor_id", actor.ID),
		zap.String("status", string(s.Status)),
		zap.Int("moves", s.Moves.Len()),
		zap.Int64("version", s.Version),
		zap.Bool("committed", st.commit),
	)
	if st.commit && st.reason != "" {
		m.finish(ctx, s, st.reason)
	}
	return st.out, nil
}

func (m *Machine) apply(ctx context.Context, id string, body func(*domain.Session) (step, error)) (*domain.Session, step, error) {
	release := m.locks.acquire(id)
	defer release()

	cur, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, step{}, err
	}
	work := cur.Clone()
	st, err := body(work)
	if err != nil {
		return nil, step{}, err
	}
	if !st.commit {
		return work, st, nil
	}
	work.UpdatedAt = m.now().UTC()
	if err := work.Validate(); err != nil {
		return nil, step{}, err
	}
	if err := m.store.Commit(ctx, work, cur.Version); err != nil {
		return nil, step{}, err
	}
	return work, st, nil
}

// finish hands a terminal session to the sinks. Sink failures are logged only.
func (m *Machine) finish(ctx context.Context, s *domain.Session, reason string) {
	obslog.L().Info("session_ended",
		zap.String("session_id", s.ID),
		zap.String("status", string(s.Status)),
		zap.String("winner", string(s.Winner)),
		zap.String("reason", reason),
	)
	for _, sink := range m.sinks {
		if err := sink.SessionEnded(ctx, s.Clone(), reason); err != nil {
			obslog.L().Error("session_sink_error",
				zap.String("session_id", s.ID),
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Error(err),
			)
		}
	}
}

func (m *Machine) logRejected(op, id, actorID string, err error) {
	code := domain.Code(err)
	if code == domain.ErrInternal {
		obslog.L().Error("session_"+op+"_failed",
			zap.String("session_id", id),
			zap.String("actor_id", actorID),
			zap.Error(err),
		)
		return
	}
	obslog.L().Debug("session_"+op+"_rejected",
		zap.String("session_id", id),
		zap.String("actor_id", actorID),
		zap.String("code", string(code)),
		zap.Error(err),
	)
}
