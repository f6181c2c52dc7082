package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Built-in piece outlines on a 45x45 view box. Each entry is an SVG element
// without its closing "/>"; fill and stroke are added per side.
var pieceShapes = map[nchess.PieceType][]string{
	nchess.Pawn: {
		`circle cx="22.5" cy="14" r="6"`,
		`path d="M15 36 L17.5 21 L27.5 21 L30 36 Z"`,
		`rect x="11" y="35" width="23" height="5"`,
	},
	nchess.Rook: {
		`path d="M11 40 L34 40 L34 35 L31 35 L30 17 L33 17 L33 9 L29 9 L29 12 L25 12 L25 9 L20 9 L20 12 L16 12 L16 9 L12 9 L12 17 L15 17 L14 35 L11 35 Z"`,
	},
	nchess.Knight: {
		`path d="M12 40 L34 40 L34 35 L31 35 C31 26 30 16 22 10 L20 5 L17.5 10 C13.5 12 9.5 18 9.5 23 L13 25.5 L18.5 21 C19.5 24.5 16 28.5 14 35 L12 35 Z"`,
	},
	nchess.Bishop: {
		`circle cx="22.5" cy="8.5" r="3"`,
		`path d="M22.5 11.5 C16 15.5 14 23 17 29 L28 29 C31 23 29 15.5 22.5 11.5 Z"`,
		`path d="M14 35 L17 30 L28 30 L31 35 Z"`,
		`rect x="10" y="35" width="25" height="5"`,
	},
	nchess.Queen: {
		`path d="M10 40 L35 40 L35 35 L32 35 L37 14 L29 25 L27 11 L22.5 24 L18 11 L16 25 L8 14 L13 35 L10 35 Z"`,
		`circle cx="8" cy="12" r="2.5"`,
		`circle cx="18" cy="9" r="2.5"`,
		`circle cx="27" cy="9" r="2.5"`,
		`circle cx="37" cy="12" r="2.5"`,
	},
	nchess.King: {
		`path d="M21 3 L24 3 L24 6 L27 6 L27 9 L24 9 L24 13 L21 13 L21 9 L18 9 L18 6 L21 6 Z"`,
		`path d="M22.5 14 C14 14 9 19.5 11 27.5 L14 35 L31 35 L34 27.5 C36 19.5 31 14 22.5 14 Z"`,
		`rect x="11" y="35" width="23" height="5"`,
	},
}

func builtinSVG(p nchess.Piece) []byte {
	fill, stroke := "#f8f8f8", "#1b1b1b"
	if p.Color() == nchess.Black {
		fill, stroke = "#262626", "#e6e6e6"
	}
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="45" height="45" viewBox="0 0 45 45">`)
	for _, el := range pieceShapes[p.Type()] {
		fmt.Fprintf(&b, `<%s fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round"/>`, el, fill, stroke)
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

type pieceKey struct {
	piece nchess.Piece
	size  int
}

// pieceSet rasterizes pieces once per size. With dir set, "<w|b><KQRBNP>.svg"
// files from dir replace the built-in outlines.
type pieceSet struct {
	dir   string
	mu    sync.RWMutex
	cache map[pieceKey]image.Image
}

func newPieceSet(dir string) *pieceSet {
	return &pieceSet{dir: strings.TrimSpace(dir), cache: make(map[pieceKey]image.Image)}
}

func (ps *pieceSet) image(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceKey{piece: piece, size: size}
	ps.mu.RLock()
	if img, ok := ps.cache[key]; ok {
		ps.mu.RUnlock()
		return img, nil
	}
	ps.mu.RUnlock()

	data, err := ps.source(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", assetName(piece), err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	ps.mu.Lock()
	ps.cache[key] = img
	ps.mu.Unlock()
	return img, nil
}

func (ps *pieceSet) source(piece nchess.Piece) ([]byte, error) {
	if ps.dir == "" {
		return builtinSVG(piece), nil
	}
	data, err := os.ReadFile(filepath.Join(ps.dir, assetName(piece)))
	if err != nil {
		return nil, fmt.Errorf("read piece asset: %w", err)
	}
	return data, nil
}

func assetName(piece nchess.Piece) string {
	prefix := "w"
	if piece.Color() == nchess.Black {
		prefix = "b"
	}
	var suffix string
	switch piece.Type() {
	case nchess.King:
		suffix = "K"
	case nchess.Queen:
		suffix = "Q"
	case nchess.Rook:
		suffix = "R"
	case nchess.Bishop:
		suffix = "B"
	case nchess.Knight:
		suffix = "N"
	case nchess.Pawn:
		suffix = "P"
	}
	return prefix + suffix + ".svg"
}

// sanitizeSVG fixes colour notations that oksvg rejects but common piece
// sets contain.
func sanitizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill:000000"), []byte("fill:#000000"))
	fixed = bytes.ReplaceAll(fixed, []byte("fill: 000000"), []byte("fill:#000000"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: 000000"), []byte("stroke:#000000"))
	fixed = bytes.ReplaceAll(fixed, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	return fixed
}
