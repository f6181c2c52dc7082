// Package rules answers legality and outcome questions about chess positions.
// Positions are exchanged as FEN strings; moves are stored in algebraic form.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/YassineElZaart/learn-chess/internal/domain"
)

// ErrReplay is returned when a stored notation no longer applies during replay.
var ErrReplay = errors.New("replay failed")

// Oracle is the rules dependency of the session state machine.
type Oracle interface {
	Validate(fen string) error
	Resolve(fen, moveText string) (Resolution, error)
	Replay(startFEN string, notations []string) (Replayed, error)
	Status(fen string) (PositionStatus, error)
	LegalMoves(fen string) ([]LegalMove, error)
}

// Form is the textual encoding a move was recognised in.
type Form string

const (
	FormCoordinate Form = "coordinate"
	FormAlgebraic  Form = "algebraic"
)

// Reason explains an unresolved move.
type Reason string

const (
	ReasonEmpty     Reason = "empty"
	ReasonIllegal   Reason = "illegal"
	ReasonAmbiguous Reason = "ambiguous"
)

// Resolution is either Resolved (Notation and Position set) or Unresolved (Reason set).
type Resolution struct {
	Resolved   bool
	Form       Form
	Notation   string // canonical algebraic
	Coordinate string
	Position   string // FEN after the move
	Mover      domain.Color
	Check      bool
	Checkmate  bool
	Stalemate  bool
	Reason     Reason
}

// Replayed is the state rebuilt from a starting position and a notation list.
type Replayed struct {
	Position   string
	SideToMove domain.Color
	Transcript string
	Positions  []string       // FEN after each move
	Movers     []domain.Color // side that played each move
	Notations  []string       // canonical algebraic form of each move
}

// PositionStatus describes a position without a move applied.
type PositionStatus struct {
	SideToMove domain.Color
	Checkmate  bool
	Stalemate  bool
}

// LegalMove lists one legal move in both encodings.
type LegalMove struct {
	Coordinate string `json:"coordinate"`
	Notation   string `json:"notation"`
}

// ChessOracle implements Oracle on top of github.com/corentings/chess.
type ChessOracle struct{}

func New() *ChessOracle { return &ChessOracle{} }

var _ Oracle = (*ChessOracle)(nil)

func newGame(fen string) (*nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nil, fmt.Errorf("%w: empty position", domain.ErrInvalidPosition)
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPosition, err)
	}
	return nchess.NewGame(opt), nil
}

// Validate reports whether fen parses as a position.
func (o *ChessOracle) Validate(fen string) error {
	_, err := newGame(fen)
	return err
}

// Resolve interprets moveText against fen: coordinate form first, then
// algebraic. The returned notation is always canonical algebraic.
func (o *ChessOracle) Resolve(fen, moveText string) (Resolution, error) {
	raw := strings.TrimSpace(moveText)
	if raw == "" {
		return Resolution{Reason: ReasonEmpty}, nil
	}
	if _, err := newGame(fen); err != nil {
		return Resolution{}, err
	}
	if res, ok := resolveCoordinate(fen, raw); ok {
		return res, nil
	}
	return resolveAlgebraic(fen, raw), nil
}

func resolveCoordinate(fen, raw string) (Resolution, bool) {
	game, err := newGame(fen)
	if err != nil {
		return Resolution{}, false
	}
	pos := game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(raw))
	if err != nil || mv == nil {
		return Resolution{}, false
	}
	if err := game.Move(mv, nil); err != nil {
		return Resolution{}, false
	}
	return resolved(game, pos, FormCoordinate)
}

func resolveAlgebraic(fen, raw string) Resolution {
	game, err := newGame(fen)
	if err != nil {
		return Resolution{Reason: ReasonIllegal}
	}
	pos := game.Position()
	text := normalizeAlgebraic(raw)
	// the decoder accepts an undisambiguated piece move and picks the first
	// match, so ambiguity has to be ruled out before pushing
	if ambiguous(pos, text) {
		return Resolution{Form: FormAlgebraic, Reason: ReasonAmbiguous}
	}
	if err := game.PushNotationMove(text, nchess.AlgebraicNotation{}, nil); err != nil {
		return Resolution{Form: FormAlgebraic, Reason: ReasonIllegal}
	}
	res, ok := resolved(game, pos, FormAlgebraic)
	if !ok {
		return Resolution{Form: FormAlgebraic, Reason: ReasonIllegal}
	}
	return res
}

func resolved(game *nchess.Game, before *nchess.Position, form Form) (Resolution, bool) {
	last := lastMove(game)
	if last == nil {
		return Resolution{}, false
	}
	san := nchess.AlgebraicNotation{}.Encode(before, last)
	if san == "" || domain.IsCoordinateNotation(san) {
		return Resolution{}, false
	}
	method := game.Method()
	return Resolution{
		Resolved:   true,
		Form:       form,
		Notation:   san,
		Coordinate: last.String(),
		Position:   game.FEN(),
		Mover:      colorFrom(before.Turn()),
		Check:      last.HasTag(nchess.Check),
		Checkmate:  method == nchess.Checkmate,
		Stalemate:  method == nchess.Stalemate,
	}, true
}

var (
	annotationReplacer = strings.NewReplacer("!", "", "?", "", "e.p.", "")
	pieceMovePattern   = regexp.MustCompile(`^([KQRBN])x?([a-h][1-8])[+#]?$`)
)

func normalizeAlgebraic(s string) string {
	s = annotationReplacer.Replace(strings.TrimSpace(s))
	switch strings.ToUpper(strings.TrimRight(s, "+#")) {
	case "0-0", "O-O":
		return "O-O" + suffix(s)
	case "0-0-0", "O-O-O":
		return "O-O-O" + suffix(s)
	}
	return s
}

func suffix(s string) string {
	if strings.HasSuffix(s, "#") {
		return "#"
	}
	if strings.HasSuffix(s, "+") {
		return "+"
	}
	return ""
}

// ambiguous reports whether an undisambiguated piece move such as "Nd2"
// matches more than one legal move in pos.
func ambiguous(pos *nchess.Position, text string) bool {
	m := pieceMovePattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	want := pieceTypeFromLetter(m[1])
	board := pos.Board()
	moves := pos.ValidMoves()
	count := 0
	for i := range moves {
		if moves[i].S2().String() != m[2] {
			continue
		}
		if board.Piece(moves[i].S1()).Type() == want {
			count++
		}
	}
	return count > 1
}

func pieceTypeFromLetter(l string) nchess.PieceType {
	switch l {
	case "K":
		return nchess.King
	case "Q":
		return nchess.Queen
	case "R":
		return nchess.Rook
	case "B":
		return nchess.Bishop
	default:
		return nchess.Knight
	}
}

// Replay applies notations in order starting from startFEN.
func (o *ChessOracle) Replay(startFEN string, notations []string) (Replayed, error) {
	game, err := newGame(startFEN)
	if err != nil {
		return Replayed{}, err
	}
	out := Replayed{
		Positions: make([]string, 0, len(notations)),
		Movers:    make([]domain.Color, 0, len(notations)),
		Notations: make([]string, 0, len(notations)),
	}
	for i, n := range notations {
		before := game.Position()
		if err := game.PushNotationMove(normalizeAlgebraic(n), nchess.AlgebraicNotation{}, nil); err != nil {
			return Replayed{}, fmt.Errorf("%w: move %d %q: %v", ErrReplay, i+1, n, err)
		}
		last := lastMove(game)
		if last == nil {
			return Replayed{}, fmt.Errorf("%w: move %d %q not recorded", ErrReplay, i+1, n)
		}
		out.Movers = append(out.Movers, colorFrom(before.Turn()))
		out.Notations = append(out.Notations, nchess.AlgebraicNotation{}.Encode(before, last))
		out.Positions = append(out.Positions, game.FEN())
	}
	out.Position = game.FEN()
	out.SideToMove = colorFrom(game.Position().Turn())
	out.Transcript = domain.BuildTranscript(domain.SideToMoveInFEN(startFEN), out.Notations)
	return out, nil
}

// ReplayCoordinates is the repair path for logs that stored coordinate
// moves: each entry is resolved in either form and re-encoded canonically.
func (o *ChessOracle) ReplayCoordinates(startFEN string, moves []string) (Replayed, error) {
	fen := startFEN
	notations := make([]string, 0, len(moves))
	for i, mv := range moves {
		res, err := o.Resolve(fen, mv)
		if err != nil {
			return Replayed{}, err
		}
		if !res.Resolved {
			return Replayed{}, fmt.Errorf("%w: move %d %q: %s", ErrReplay, i+1, mv, res.Reason)
		}
		notations = append(notations, res.Notation)
		fen = res.Position
	}
	return o.Replay(startFEN, notations)
}

// Status reports checkmate/stalemate for fen.
func (o *ChessOracle) Status(fen string) (PositionStatus, error) {
	game, err := newGame(fen)
	if err != nil {
		return PositionStatus{}, err
	}
	pos := game.Position()
	method := pos.Status()
	return PositionStatus{
		SideToMove: colorFrom(pos.Turn()),
		Checkmate:  method == nchess.Checkmate,
		Stalemate:  method == nchess.Stalemate,
	}, nil
}

// LegalMoves enumerates the legal moves in fen.
func (o *ChessOracle) LegalMoves(fen string) ([]LegalMove, error) {
	game, err := newGame(fen)
	if err != nil {
		return nil, err
	}
	moves := game.Position().ValidMoves()
	out := make([]LegalMove, 0, len(moves))
	for i := range moves {
		res, ok := resolveCoordinate(fen, moves[i].String())
		if !ok {
			continue
		}
		out = append(out, LegalMove{Coordinate: res.Coordinate, Notation: res.Notation})
	}
	return out, nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}
