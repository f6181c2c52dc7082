package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MoveEntry is one immutable record in a session's move log.
type MoveEntry struct {
	Seq          int       `json:"seq"`
	Notation     string    `json:"notation"`
	ResultingFEN string    `json:"resulting_fen"`
	PlayedAt     time.Time `json:"played_at"`
}

// MoveLog is the ordered, append-only list of moves of one session.
// Entries are only removed by an accepted takeback.
type MoveLog []MoveEntry

func (l MoveLog) Len() int { return len(l) }

// Append adds e at the end. The sequence number must be exactly Len()+1 and
// the notation must be algebraic.
func (l *MoveLog) Append(e MoveEntry) error {
	if e.Seq != len(*l)+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, e.Seq, len(*l)+1)
	}
	if strings.TrimSpace(e.Notation) == "" {
		return fmt.Errorf("%w: empty notation", ErrCoordinateNotation)
	}
	if IsCoordinateNotation(e.Notation) {
		return fmt.Errorf("%w: %q", ErrCoordinateNotation, e.Notation)
	}
	*l = append(*l, e)
	return nil
}

// DeleteLast removes the most recent entry played by side, where odd
// sequence numbers belong to startSide. Surviving entries keep their numbers.
func (l *MoveLog) DeleteLast(side, startSide Color) (MoveEntry, error) {
	for i := len(*l) - 1; i >= 0; i-- {
		e := (*l)[i]
		owner := startSide
		if e.Seq%2 == 0 {
			owner = startSide.Opposite()
		}
		if owner != side {
			continue
		}
		out := make(MoveLog, 0, len(*l)-1)
		out = append(out, (*l)[:i]...)
		out = append(out, (*l)[i+1:]...)
		*l = out
		return e, nil
	}
	return MoveEntry{}, ErrNoMovesToUndo
}

// Last returns the most recent entry.
func (l MoveLog) Last() (MoveEntry, bool) {
	if len(l) == 0 {
		return MoveEntry{}, false
	}
	return l[len(l)-1], true
}

// Notations lists the stored notations in sequence order.
func (l MoveLog) Notations() []string {
	out := make([]string, len(l))
	for i, e := range l {
		out[i] = e.Notation
	}
	return out
}

// Entries returns a copy of the log.
func (l MoveLog) Entries() []MoveEntry {
	return append([]MoveEntry(nil), l...)
}

func (l MoveLog) Clone() MoveLog {
	if l == nil {
		return nil
	}
	return append(MoveLog(nil), l...)
}

// BuildTranscript renders notations as numbered move text, e.g. "1. e4 e5 2. Nf3".
// When black starts, the first move is written as "1... e5".
func BuildTranscript(startSide Color, notations []string) string {
	var parts []string
	offset := 0
	if startSide == Black {
		offset = 1
	}
	for i, n := range notations {
		ply := i + offset
		num := ply/2 + 1
		switch {
		case ply%2 == 0:
			parts = append(parts, strconv.Itoa(num)+". "+n)
		case i == 0:
			parts = append(parts, strconv.Itoa(num)+"... "+n)
		default:
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}
