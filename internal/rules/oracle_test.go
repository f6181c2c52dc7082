package rules

import (
	"errors"
	"testing"

	"github.com/YassineElZaart/learn-chess/internal/domain"
)

const (
	backRankFEN  = "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1"
	stalemateFEN = "7k/8/6K1/8/8/8/5Q2/8 w - - 0 1"
	twoKnights   = "4k3/8/8/8/8/8/8/1N2KN2 w - - 0 1"
)

func TestResolve_CoordinateBecomesAlgebraic(t *testing.T) {
	o := New()
	res, err := o.Resolve(domain.StandardStartFEN, "e2e4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Resolved || res.Form != FormCoordinate {
		t.Fatalf("expected coordinate resolution, got %+v", res)
	}
	if res.Notation != "e4" {
		t.Fatalf("notation = %q, want e4", res.Notation)
	}
	if res.Mover != domain.White || domain.SideToMoveInFEN(res.Position) != domain.Black {
		t.Fatalf("mover=%s position=%s", res.Mover, res.Position)
	}
}

func TestResolve_AlgebraicInput(t *testing.T) {
	o := New()
	for _, in := range []string{"Nf3", "Nf3!", " Nf3 "} {
		res, err := o.Resolve(domain.StandardStartFEN, in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", in, err)
		}
		if !res.Resolved || res.Form != FormAlgebraic || res.Notation != "Nf3" {
			t.Fatalf("Resolve(%q) = %+v", in, res)
		}
	}
}

func TestResolve_Checkmate(t *testing.T) {
	o := New()
	for _, in := range []string{"a1a8", "Ra8", "Ra8#"} {
		res, err := o.Resolve(backRankFEN, in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", in, err)
		}
		if !res.Resolved || res.Notation != "Ra8#" || !res.Checkmate || !res.Check {
			t.Fatalf("Resolve(%q) = %+v", in, res)
		}
	}
}

func TestResolve_Stalemate(t *testing.T) {
	res, err := New().Resolve(stalemateFEN, "Qf7")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Resolved || !res.Stalemate || res.Checkmate {
		t.Fatalf("expected stalemate, got %+v", res)
	}
}

func TestResolve_Unresolved(t *testing.T) {
	o := New()
	cases := []struct {
		fen, in string
		want    Reason
	}{
		{domain.StandardStartFEN, "", ReasonEmpty},
		{domain.StandardStartFEN, "e2e5", ReasonIllegal},
		{domain.StandardStartFEN, "e5", ReasonIllegal},
		{domain.StandardStartFEN, "hello", ReasonIllegal},
		{twoKnights, "Nd2", ReasonAmbiguous},
	}
	for _, c := range cases {
		res, err := o.Resolve(c.fen, c.in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", c.in, err)
		}
		if res.Resolved || res.Reason != c.want {
			t.Fatalf("Resolve(%q) = %+v, want reason %s", c.in, res, c.want)
		}
	}
}

func TestResolve_DisambiguatedMove(t *testing.T) {
	res, err := New().Resolve(twoKnights, "Nbd2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Resolved || res.Notation != "Nbd2" {
		t.Fatalf("got %+v", res)
	}
}

func TestResolve_InvalidPosition(t *testing.T) {
	if _, err := New().Resolve("not a fen", "e4"); !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	if err := New().Validate(""); !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition for empty fen, got %v", err)
	}
}

func TestReplay_MatchesStepwiseResolution(t *testing.T) {
	o := New()
	fen := domain.StandardStartFEN
	var notations []string
	for _, mv := range []string{"e2e4", "e7e5", "g1f3", "Nc6", "Bb5"} {
		res, err := o.Resolve(fen, mv)
		if err != nil || !res.Resolved {
			t.Fatalf("Resolve(%q) = %+v, %v", mv, res, err)
		}
		notations = append(notations, res.Notation)
		fen = res.Position
	}
	out, err := o.Replay(domain.StandardStartFEN, notations)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if out.Position != fen {
		t.Fatalf("replayed position %q != %q", out.Position, fen)
	}
	if out.SideToMove != domain.Black {
		t.Fatalf("side to move = %s", out.SideToMove)
	}
	if out.Transcript != "1. e4 e5 2. Nf3 Nc6 3. Bb5" {
		t.Fatalf("transcript = %q", out.Transcript)
	}
	want := []domain.Color{domain.White, domain.Black, domain.White, domain.Black, domain.White}
	for i, c := range want {
		if out.Movers[i] != c {
			t.Fatalf("mover %d = %s", i, out.Movers[i])
		}
	}
}

func TestReplay_Divergence(t *testing.T) {
	_, err := New().Replay(domain.StandardStartFEN, []string{"e4", "Nf3"})
	if !errors.Is(err, ErrReplay) {
		t.Fatalf("expected ErrReplay, got %v", err)
	}
}

func TestReplayCoordinates(t *testing.T) {
	out, err := New().ReplayCoordinates(domain.StandardStartFEN, []string{"e2e4", "e5", "g1f3"})
	if err != nil {
		t.Fatalf("ReplayCoordinates: %v", err)
	}
	if got := out.Notations; len(got) != 3 || got[0] != "e4" || got[1] != "e5" || got[2] != "Nf3" {
		t.Fatalf("notations = %v", got)
	}
}

func TestStatus(t *testing.T) {
	st, err := New().Status(domain.StandardStartFEN)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Checkmate || st.Stalemate || st.SideToMove != domain.White {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestLegalMoves(t *testing.T) {
	moves, err := New().LegalMoves(domain.StandardStartFEN)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 20 {
		t.Fatalf("expected 20 legal moves, got %d", len(moves))
	}
	found := false
	for _, m := range moves {
		if m.Coordinate == "g1f3" && m.Notation == "Nf3" {
			found = true
		}
		if domain.IsCoordinateNotation(m.Notation) {
			t.Fatalf("notation %q in coordinate form", m.Notation)
		}
	}
	if !found {
		t.Fatalf("g1f3/Nf3 missing from %v", moves)
	}
}
