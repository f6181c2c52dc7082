package sessiondto

// Command types accepted from clients. TypeJoinGame is the legacy spelling of TypeJoin.
const (
	TypeJoin             = "join"
	TypeJoinGame         = "join_game"
	TypeMakeMove         = "make_move"
	TypeResign           = "resign"
	TypeOfferDraw        = "offer_draw"
	TypeAcceptDraw       = "accept_draw"
	TypeRequestTakeback  = "request_takeback"
	TypeTakebackResponse = "takeback_response"
	TypeRequestState     = "request_state"
)

// Command is the JSON message read from a connection.
type Command struct {
	Type        string `json:"type"`
	Move        string `json:"move,omitempty"`
	Accepted    bool   `json:"accepted,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`
}

// CreateRequest is the body of POST /games.
type CreateRequest struct {
	FEN string `json:"fen"`
}

// ErrorBody is the JSON body of a failed HTTP request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
