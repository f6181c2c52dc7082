package domain

import (
	"fmt"
	"strings"
	"time"
)

// StandardStartFEN is the initial position of a regular game.
const StandardStartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color identifies a seat.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

// Status represents the session lifecycle.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDraw       Status = "draw"
	StatusResigned   Status = "resigned"
)

// Terminal reports whether no further transitions can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDraw || s == StatusResigned
}

// Winner is set only on terminal transitions.
type Winner string

const (
	WinnerNone  Winner = ""
	WinnerWhite Winner = "white"
	WinnerBlack Winner = "black"
	WinnerDraw  Winner = "draw"
)

// WinnerOf converts a side into the matching winner value.
func WinnerOf(c Color) Winner {
	if c == White {
		return WinnerWhite
	}
	return WinnerBlack
}

// Participant is a seated identity.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the mutable record of one live game. It exclusively owns Moves.
type Session struct {
	ID          string       `json:"id"`
	StartingFEN string       `json:"starting_fen"`
	CurrentFEN  string       `json:"current_fen"`
	SideToMove  Color        `json:"side_to_move"`
	Status      Status       `json:"status"`
	Winner      Winner       `json:"winner,omitempty"`
	White       *Participant `json:"white,omitempty"`
	Black       *Participant `json:"black,omitempty"`
	Transcript  string       `json:"transcript"`
	Moves       MoveLog      `json:"moves"`

	// PendingDraw and PendingTakeback hold the offering/requesting player id.
	// They are only written when strict negotiation is enabled.
	PendingDraw     string `json:"pending_draw,omitempty"`
	PendingTakeback string `json:"pending_takeback,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns a waiting session positioned at startFEN.
// startSide is the side to move in startFEN.
func NewSession(id, startFEN string, startSide Color, now time.Time) *Session {
	return &Session{
		ID:          id,
		StartingFEN: startFEN,
		CurrentFEN:  startFEN,
		SideToMove:  startSide,
		Status:      StatusWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StartSide is the side to move in the starting position.
func (s *Session) StartSide() Color {
	return SideToMoveInFEN(s.StartingFEN)
}

// SideForSequence returns the side that plays move number n (1-based).
// Odd numbers belong to the starting side, which is white for every regular start.
func (s *Session) SideForSequence(n int) Color {
	start := s.StartSide()
	if n%2 == 1 {
		return start
	}
	return start.Opposite()
}

// SeatOf returns the side occupied by actorID.
func (s *Session) SeatOf(actorID string) (Color, bool) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", false
	}
	if s.White != nil && s.White.ID == actorID {
		return White, true
	}
	if s.Black != nil && s.Black.ID == actorID {
		return Black, true
	}
	return "", false
}

// Seat returns the participant in the given seat, or nil.
func (s *Session) Seat(c Color) *Participant {
	if c == White {
		return s.White
	}
	return s.Black
}

// Full reports whether both seats are filled.
func (s *Session) Full() bool { return s.White != nil && s.Black != nil }

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.White != nil {
		w := *s.White
		cp.White = &w
	}
	if s.Black != nil {
		b := *s.Black
		cp.Black = &b
	}
	cp.Moves = s.Moves.Clone()
	return &cp
}

// Validate checks the record invariants.
func (s *Session) Validate() error {
	if s.Status == StatusInProgress && !s.Full() {
		return fmt.Errorf("%w: in_progress with an empty seat", ErrInvariant)
	}
	if s.Status == StatusWaiting && s.Full() {
		return fmt.Errorf("%w: waiting with both seats filled", ErrInvariant)
	}
	if s.Status.Terminal() != (s.Winner != WinnerNone) {
		return fmt.Errorf("%w: status %s with winner %q", ErrInvariant, s.Status, s.Winner)
	}
	if !s.SideToMove.Valid() {
		return fmt.Errorf("%w: side to move %q", ErrInvariant, s.SideToMove)
	}
	for i, e := range s.Moves.Entries() {
		if e.Seq != i+1 {
			return fmt.Errorf("%w: move %d has sequence %d", ErrInvariant, i+1, e.Seq)
		}
	}
	if want := BuildTranscript(s.StartSide(), s.Moves.Notations()); want != s.Transcript {
		return fmt.Errorf("%w: transcript %q does not match log %q", ErrInvariant, s.Transcript, want)
	}
	return nil
}

// SideToMoveInFEN reads the active color field of a FEN string.
// Anything unreadable is treated as white.
func SideToMoveInFEN(fen string) Color {
	fields := strings.Fields(fen)
	if len(fields) >= 2 && fields[1] == "b" {
		return Black
	}
	return White
}
