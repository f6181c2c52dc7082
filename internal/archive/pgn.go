package archive

import (
    "fmt"
    "strings"
    "time"

    "github.com/YassineElZaart/learn-chess/internal/domain"
)

// Headers carries the PGN tags that do not come from the game itself.
type Headers struct {
    Event string
    Site  string
}

// ResultToken maps a winner value to the PGN result token.
func ResultToken(result string) string {
    switch strings.ToLower(strings.TrimSpace(result)) {
    case "white":
        return "1-0"
    case "black":
        return "0-1"
    case "draw":
        return "1/2-1/2"
    default:
        return "*"
    }
}

// BuildPGN renders r as a PGN game. Non-standard starting positions get the
// SetUp/FEN tag pair so the movetext replays from the right place.
func BuildPGN(r Result, h Headers) string {
    token := ResultToken(r.Result)
    date := r.EndedAt
    if date.IsZero() {
        date = time.Now()
    }

    var b strings.Builder
    tag := func(name, value string) {
        fmt.Fprintf(&b, "[%s \"%s\"]\n", name, sanitizePGN(value))
    }
    tag("Event", h.Event)
    tag("Site", h.Site)
    tag("Date", fmt.Sprintf("%04d.%02d.%02d", date.Year(), int(date.Month()), date.Day()))
    tag("White", r.WhiteName)
    tag("Black", r.BlackName)
    tag("Result", token)
    if r.StartFEN != "" && r.StartFEN != domain.StandardStartFEN {
        tag("SetUp", "1")
        tag("FEN", r.StartFEN)
    }
    if strings.TrimSpace(r.Method) != "" {
        tag("Termination", strings.ToLower(r.Method))
    }
    b.WriteString("\n")

    movetext := domain.BuildTranscript(domain.SideToMoveInFEN(r.StartFEN), r.MovesSAN)
    if movetext != "" {
        b.WriteString(movetext)
        b.WriteString(" ")
    }
    b.WriteString(token)
    return b.String()
}

func sanitizePGN(s string) string {
    s = strings.ReplaceAll(s, "\\", " ")
    s = strings.ReplaceAll(s, "\"", "'")
    return strings.TrimSpace(s)
}
