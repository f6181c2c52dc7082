package domain

import "errors"

// Error is a stable, client-facing error. Its value doubles as the message
// catalog key.
type Error string

func (e Error) Error() string { return string(e) }

// Precondition violations.
const (
	ErrSessionNotFound   Error = "session_not_found"
	ErrGameNotWaiting    Error = "game_not_waiting"
	ErrGameNotInProgress Error = "game_not_in_progress"
	ErrNotYourTurn       Error = "not_your_turn"
	ErrSessionFull       Error = "session_full"
	ErrAlreadySeated     Error = "already_seated"
	ErrNotAPlayer        Error = "not_a_player"
	ErrNoMovesToUndo     Error = "no_moves_to_undo"
	ErrNoPendingOffer    Error = "no_pending_offer"
	ErrConcurrentUpdate  Error = "concurrent_update"
)

// Input rejections.
const (
	ErrIllegalMove      Error = "illegal_move"
	ErrAmbiguousMove    Error = "ambiguous_move"
	ErrMalformedCommand Error = "malformed_command"
	ErrInvalidPosition  Error = "invalid_position"
)

// Log and replay integrity.
const (
	ErrSequenceGap        Error = "sequence_gap"
	ErrCoordinateNotation Error = "coordinate_notation"
	ErrTakebackDiverged   Error = "takeback_diverged"
	ErrInvariant          Error = "invariant_violation"
)

// ErrInternal is reported to clients for storage and oracle failures.
const ErrInternal Error = "internal"

var clientErrors = []Error{
	ErrSessionNotFound, ErrGameNotWaiting, ErrGameNotInProgress, ErrNotYourTurn,
	ErrSessionFull, ErrAlreadySeated, ErrNotAPlayer, ErrNoMovesToUndo,
	ErrNoPendingOffer, ErrConcurrentUpdate, ErrIllegalMove, ErrAmbiguousMove,
	ErrMalformedCommand, ErrInvalidPosition, ErrTakebackDiverged,
}

// Code classifies err into a client-facing code. Anything that is not a
// precondition or input error becomes ErrInternal.
func Code(err error) Error {
	if err == nil {
		return ""
	}
	for _, e := range clientErrors {
		if errors.Is(err, e) {
			return e
		}
	}
	return ErrInternal
}
