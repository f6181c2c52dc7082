package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/YassineElZaart/learn-chess/internal/domain"
)

const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"

func decode(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

// centre of the square drawn at grid cell (col,row)
func cellCentre(size, col, row int) (int, int) {
	return margin + col*size + size/2, margin/2 + row*size + size/2
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func TestRenderPNGDimensions(t *testing.T) {
	r := New(WithSquareSize(40))
	b, err := r.RenderPNG(context.Background(), domain.StandardStartFEN, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decode(t, b)
	want := 40*8 + margin + margin/2
	if img.Bounds().Dx() != want || img.Bounds().Dy() != want {
		t.Fatalf("size = %v, want %dx%d", img.Bounds(), want, want)
	}
}

func TestRenderHighlightFollowsOrientation(t *testing.T) {
	const size = 32
	r := New(WithSquareSize(size))

	plain, err := r.RenderPNG(context.Background(), afterE4, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	lit, err := r.RenderPNG(context.Background(), afterE4, Options{LastMove: "e2e4"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	flipped, err := r.RenderPNG(context.Background(), afterE4, Options{LastMove: "e2e4", Flip: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	e3 := nchess.NewSquare(nchess.FileE, nchess.Rank3)
	x, y := cellCentre(size, 4, 5)
	if !sameColor(decode(t, plain).At(x, y), squareColor(e3)) {
		t.Fatalf("e3 without highlight should be the plain square colour")
	}

	// e2 is empty after the move and highlighted as the origin square
	x, y = cellCentre(size, 4, 6)
	if sameColor(decode(t, lit).At(x, y), squareColor(nchess.NewSquare(nchess.FileE, nchess.Rank2))) {
		t.Fatalf("e2 should be highlighted")
	}
	fx, fy := cellCentre(size, 3, 1)
	if sameColor(decode(t, flipped).At(fx, fy), squareColor(nchess.NewSquare(nchess.FileE, nchess.Rank2))) {
		t.Fatalf("e2 should be highlighted in the flipped view")
	}
	x, y = cellCentre(size, 4, 5)
	if !sameColor(decode(t, flipped).At(x, y), squareColor(nchess.NewSquare(nchess.FileD, nchess.Rank6))) {
		t.Fatalf("flipped cell (4,5) is d6 and must not be highlighted")
	}
}

func TestRenderInvalidFEN(t *testing.T) {
	_, err := New().RenderPNG(context.Background(), "garbage", Options{})
	if !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().RenderPNG(ctx, domain.StandardStartFEN, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuiltinPiecesParse(t *testing.T) {
	ps := newPieceSet("")
	for _, p := range []nchess.Piece{
		nchess.WhiteKing, nchess.WhiteQueen, nchess.WhiteRook, nchess.WhiteBishop, nchess.WhiteKnight, nchess.WhitePawn,
		nchess.BlackKing, nchess.BlackQueen, nchess.BlackRook, nchess.BlackBishop, nchess.BlackKnight, nchess.BlackPawn,
	} {
		if _, err := ps.image(p, 24); err != nil {
			t.Fatalf("%s: %v", assetName(p), err)
		}
	}
}

func TestParseMove(t *testing.T) {
	from, to, ok := parseMove("g1f3")
	if !ok || from.String() != "g1" || to.String() != "f3" {
		t.Fatalf("parseMove = %v %v %v", from, to, ok)
	}
	if _, _, ok := parseMove("Nf3"); ok {
		t.Fatalf("algebraic input must not parse")
	}
}
