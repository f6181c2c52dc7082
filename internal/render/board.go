// Package render draws positions as PNG images.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/YassineElZaart/learn-chess/internal/domain"
)

const (
	defaultSquareSize = 64
	minSquareSize     = 16
	maxSquareSize     = 128
	margin            = 24
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	backgroundColor = color.RGBA{38, 36, 33, 255}
	coordinateColor = color.RGBA{220, 220, 220, 255}
)

// Options controls a single rendering.
type Options struct {
	// Flip draws the board from black's side.
	Flip bool
	// LastMove is a coordinate move ("e2e4") whose squares get highlighted.
	LastMove string
	// SquareSize in pixels; zero uses the renderer default.
	SquareSize int
}

type Renderer struct {
	pieces     *pieceSet
	squareSize int
}

type Option func(*Renderer)

// WithPieceDir loads piece SVGs from dir instead of the built-in set.
func WithPieceDir(dir string) Option {
	return func(r *Renderer) { r.pieces = newPieceSet(dir) }
}

func WithSquareSize(n int) Option {
	return func(r *Renderer) { r.squareSize = clampSize(n) }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{pieces: newPieceSet(""), squareSize: defaultSquareSize}
	for _, o := range opts {
		o(r)
	}
	return r
}

func clampSize(n int) int {
	switch {
	case n <= 0:
		return defaultSquareSize
	case n < minSquareSize:
		return minSquareSize
	case n > maxSquareSize:
		return maxSquareSize
	}
	return n
}

// RenderPNG draws the position described by fen.
func (r *Renderer) RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	fenOpt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPosition, err)
	}
	board := nchess.NewGame(fenOpt).Position().Board()

	size := r.squareSize
	if opts.SquareSize > 0 {
		size = clampSize(opts.SquareSize)
	}
	boardSize := size * 8
	origin := image.Point{X: margin, Y: margin / 2}
	img := image.NewRGBA(image.Rect(0, 0, boardSize+margin+margin/2, boardSize+margin+margin/2))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	v := view{size: size, origin: origin, flip: opts.Flip}
	for _, sq := range allSquares() {
		imagedraw.Draw(img, v.rect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
	}
	if from, to, ok := parseMove(opts.LastMove); ok {
		for _, sq := range []nchess.Square{from, to} {
			imagedraw.Draw(img, v.rect(sq), image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		pimg, err := r.pieces.image(piece, size)
		if err != nil {
			return nil, err
		}
		imagedraw.Draw(img, v.rect(sq), pimg, image.Point{}, imagedraw.Over)
	}
	v.drawCoordinates(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// view maps squares to pixels for one orientation.
type view struct {
	size   int
	origin image.Point
	flip   bool
}

func (v view) cell(sq nchess.Square) (col, row int) {
	col, row = int(sq.File()), 7-int(sq.Rank())
	if v.flip {
		col, row = 7-col, 7-row
	}
	return col, row
}

func (v view) rect(sq nchess.Square) image.Rectangle {
	col, row := v.cell(sq)
	x := v.origin.X + col*v.size
	y := v.origin.Y + row*v.size
	return image.Rect(x, y, x+v.size, y+v.size)
}

func (v view) drawCoordinates(dst imagedraw.Image) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateColor)}
	ascent := face.Metrics().Ascent.Ceil()
	bottom := v.origin.Y + 8*v.size

	for i := 0; i < 8; i++ {
		rankSq := nchess.NewSquare(nchess.FileA, nchess.Rank(i))
		_, row := v.cell(rankSq)
		drawCenteredText(drawer, nchess.Rank(i).String(), v.origin.X-margin/2, v.origin.Y+row*v.size+v.size/2+ascent/2)

		fileSq := nchess.NewSquare(nchess.File(i), nchess.Rank1)
		col, _ := v.cell(fileSq)
		drawCenteredText(drawer, nchess.File(i).String(), v.origin.X+col*v.size+v.size/2, bottom+ascent)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func allSquares() []nchess.Square {
	out := make([]nchess.Square, 0, 64)
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			out = append(out, nchess.NewSquare(nchess.File(f), nchess.Rank(r)))
		}
	}
	return out
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

// parseMove splits a coordinate move into its squares.
func parseMove(mv string) (from, to nchess.Square, ok bool) {
	mv = strings.ToLower(strings.TrimSpace(mv))
	if len(mv) < 4 {
		return 0, 0, false
	}
	from, ok1 := parseSquare(mv[0:2])
	to, ok2 := parseSquare(mv[2:4])
	return from, to, ok1 && ok2
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}
