// Package logcheck verifies stored move logs by replaying them and can
// rewrite logs that were recorded in coordinate form.
package logcheck

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/internal/rules"
	"github.com/YassineElZaart/learn-chess/internal/session"
)

// Store is what the checker needs from a session store.
type Store interface {
	session.Store
	IDs(ctx context.Context) ([]string, error)
}

// Replayer is the part of the rules oracle used here.
type Replayer interface {
	Replay(startFEN string, notations []string) (rules.Replayed, error)
	ReplayCoordinates(startFEN string, moves []string) (rules.Replayed, error)
}

// Problem kinds.
const (
	ProblemCoordinate = "coordinate_notation"
	ProblemReplay     = "replay_failed"
	ProblemPosition   = "position_mismatch"
	ProblemMoveFEN    = "move_fen_mismatch"
	ProblemSide       = "side_to_move_mismatch"
	ProblemTranscript = "transcript_mismatch"
	ProblemNotation   = "non_canonical_notation"
)

// Report is the result for one session.
type Report struct {
	SessionID string
	Moves     int
	Problems  []string
	Fixed     bool
	Err       error
}

func (r Report) OK() bool { return len(r.Problems) == 0 && r.Err == nil }

type Checker struct {
	store  Store
	oracle Replayer
}

func New(store Store, oracle Replayer) *Checker {
	return &Checker{store: store, oracle: oracle}
}

// Run checks every stored session, repairing the broken ones when fix is set.
func (c *Checker) Run(ctx context.Context, fix bool) ([]Report, error) {
	ids, err := c.store.IDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rep := c.CheckID(ctx, id)
		if fix && !rep.OK() && rep.Err == nil {
			if err := c.Fix(ctx, id); err != nil {
				rep.Err = err
			} else {
				rep.Fixed = true
			}
		}
		out = append(out, rep)
	}
	return out, nil
}

// CheckID loads and checks one session.
func (c *Checker) CheckID(ctx context.Context, id string) Report {
	s, err := c.store.Load(ctx, id)
	if err != nil {
		return Report{SessionID: id, Err: err}
	}
	return c.Check(s)
}

// Check compares a session against a replay of its own log.
func (c *Checker) Check(s *domain.Session) Report {
	rep := Report{SessionID: s.ID, Moves: s.Moves.Len()}
	notations := s.Moves.Notations()
	for _, n := range notations {
		if domain.IsCoordinateNotation(n) {
			rep.Problems = append(rep.Problems, ProblemCoordinate)
			break
		}
	}

	replayed, err := c.oracle.Replay(s.StartingFEN, notations)
	if err != nil {
		rep.Problems = append(rep.Problems, ProblemReplay)
		return rep
	}
	for i, n := range replayed.Notations {
		if n != notations[i] {
			rep.Problems = append(rep.Problems, ProblemNotation)
			break
		}
	}
	for i, fen := range replayed.Positions {
		if s.Moves[i].ResultingFEN != fen {
			rep.Problems = append(rep.Problems, ProblemMoveFEN)
			break
		}
	}
	if replayed.Position != s.CurrentFEN {
		rep.Problems = append(rep.Problems, ProblemPosition)
	}
	if replayed.SideToMove != s.SideToMove {
		rep.Problems = append(rep.Problems, ProblemSide)
	}
	if replayed.Transcript != s.Transcript {
		rep.Problems = append(rep.Problems, ProblemTranscript)
	}
	return rep
}

// ErrUnrepairable is returned when a log cannot be replayed in either form.
var ErrUnrepairable = errors.New("log cannot be repaired")

// Fix rebuilds the log of id from a replay that accepts both move forms and
// commits the canonical result.
func (c *Checker) Fix(ctx context.Context, id string) error {
	s, err := c.store.Load(ctx, id)
	if err != nil {
		return err
	}
	replayed, err := c.oracle.ReplayCoordinates(s.StartingFEN, s.Moves.Notations())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnrepairable, id, err)
	}

	rebuilt := make(domain.MoveLog, 0, len(replayed.Notations))
	for i, n := range replayed.Notations {
		if err := rebuilt.Append(domain.MoveEntry{
			Seq:          i + 1,
			Notation:     n,
			ResultingFEN: replayed.Positions[i],
			PlayedAt:     s.Moves[i].PlayedAt,
		}); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnrepairable, id, err)
		}
	}

	expected := s.Version
	s.Moves = rebuilt
	s.CurrentFEN = replayed.Position
	s.SideToMove = replayed.SideToMove
	s.Transcript = replayed.Transcript
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnrepairable, id, err)
	}
	if err := c.store.Commit(ctx, s, expected); err != nil {
		return err
	}
	obslog.L().Info("logcheck_fixed", zap.String("session_id", id), zap.Int("moves", rebuilt.Len()), zap.Int64("version", s.Version))
	return nil
}
