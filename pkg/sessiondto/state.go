package sessiondto

// HistoryEntry is one row of the move history.
type HistoryEntry struct {
	Number   int    `json:"number"`
	Notation string `json:"notation"`
}

// State is the snapshot attached to most events.
type State struct {
	ID          string         `json:"id"`
	Position    string         `json:"position"`
	Status      string         `json:"status"`
	SideToMove  string         `json:"sideToMove"`
	WhiteName   *string        `json:"whiteName"`
	BlackName   *string        `json:"blackName"`
	Transcript  string         `json:"transcript"`
	MoveHistory []HistoryEntry `json:"moveHistory"`
	Winner      *string        `json:"winner"`
	Check       bool           `json:"check"`
}

// Summary is one row of a player's game list.
type Summary struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	WhiteName *string `json:"whiteName"`
	BlackName *string `json:"blackName"`
	Winner    *string `json:"winner"`
	Moves     int     `json:"moves"`
	UpdatedAt int64   `json:"updatedAt"`
}
