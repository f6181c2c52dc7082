package sessiondto

// Event types sent to clients.
const (
	TypePlayerJoined      = "player_joined"
	TypeMoveMade          = "move_made"
	TypeGameEnded         = "game_ended"
	TypeDrawOffered       = "draw_offered"
	TypeTakebackRequested = "takeback_requested"
	TypeTakebackAccepted  = "takeback_accepted"
	TypeTakebackDeclined  = "takeback_declined"
	TypeGameState         = "game_state"
	TypeError             = "error"
)

// Game end reasons.
const (
	ReasonCheckmate    = "checkmate"
	ReasonStalemate    = "stalemate"
	ReasonResignation  = "resignation"
	ReasonDrawAccepted = "draw_accepted"
)

// Event is the JSON envelope written to a connection.
type Event struct {
	Type      string `json:"type"`
	Move      string `json:"move,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Winner    string `json:"winner,omitempty"`
	ActorID   string `json:"actorId,omitempty"`
	ActorName string `json:"actorName,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	State     *State `json:"state,omitempty"`
}
