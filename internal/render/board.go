// Package render draws board snapshots as PNG images.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/room"
)

type Options struct {
	LastMove *omok.Point
	Header   string
	Footer   string
}

// FromSnapshot builds the cells and options for a room snapshot.
func FromSnapshot(s room.Snapshot) ([][]omok.Seat, Options) {
	opts := Options{LastMove: s.LastMove, Header: "Room " + s.ID}
	switch s.Phase {
	case room.PhaseActive:
		opts.Footer = fmt.Sprintf("%s to move  %s  B %s  W %s", s.Turn, moveCount(len(s.History)), clock(s.Budgets.Black), clock(s.Budgets.White))
	case room.PhaseFinished:
		if s.Winner.Valid() {
			opts.Footer = fmt.Sprintf("%s wins by %s  %s", s.Winner, s.Reason, moveCount(len(s.History)))
		} else {
			opts.Footer = fmt.Sprintf("draw  %s", moveCount(len(s.History)))
		}
	default:
		opts.Footer = "waiting for opponent"
	}
	return s.Board, opts
}

func moveCount(n int) string {
	if n == 1 {
		return "1 move"
	}
	return strconv.Itoa(n) + " moves"
}

func clock(sec int) string {
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

const (
	cellSize     = 36
	boardPadding = 24
	sideMargin   = 28
	topMargin    = 56
	bottomMargin = 48
	panelRadius  = 10
	stoneScale   = 0.92
)

var (
	backgroundColor = color.RGBA{44, 40, 36, 255}
	boardColor      = color.RGBA{222, 184, 120, 255}
	gridColor       = color.RGBA{58, 42, 24, 255}
	hoshiColor      = color.RGBA{58, 42, 24, 255}
	lastMoveColor   = color.NRGBA{R: 220, G: 48, B: 48, A: 230}
	boardShadow     = color.NRGBA{0, 0, 0, 70}
	hudPanelColor   = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTextColor    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	labelColor      = color.NRGBA{R: 214, G: 200, B: 170, A: 255}
)

// RenderPNG draws cells (row-major, square) and encodes the image as PNG.
func RenderPNG(ctx context.Context, cells [][]omok.Seat, opts Options) ([]byte, error) {
	n := len(cells)
	if n < omok.WinLength {
		return nil, errors.New("board too small")
	}
	for _, row := range cells {
		if len(row) != n {
			return nil, errors.New("board is not square")
		}
	}

	boardPx := (n-1)*cellSize + boardPadding*2
	width := boardPx + sideMargin*2
	height := boardPx + topMargin + bottomMargin
	boardRect := image.Rect(sideMargin, topMargin, sideMargin+boardPx, topMargin+boardPx)
	origin := image.Pt(boardRect.Min.X+boardPadding, boardRect.Min.Y+boardPadding)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)
	imagedraw.Draw(img, boardRect.Add(image.Pt(4, 6)), image.NewUniform(boardShadow), image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, boardRect, image.NewUniform(boardColor), image.Point{}, imagedraw.Src)

	drawGrid(img, n, origin)
	drawHoshi(img, n, origin)
	if err := drawStones(img, cells, origin); err != nil {
		return nil, err
	}
	if lm := opts.LastMove; lm != nil && lm.Row >= 0 && lm.Row < n && lm.Col >= 0 && lm.Col < n {
		fillCircle(img, center(origin, lm.Row, lm.Col), float64(cellSize)/7, lastMoveColor)
	}
	drawLabels(img, n, origin)
	drawHUD(img, boardRect, opts)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderSnapshot is RenderPNG for a room snapshot.
func RenderSnapshot(ctx context.Context, s room.Snapshot) ([]byte, error) {
	cells, opts := FromSnapshot(s)
	return RenderPNG(ctx, cells, opts)
}

func center(origin image.Point, row, col int) image.Point {
	return image.Pt(origin.X+col*cellSize, origin.Y+row*cellSize)
}

func drawGrid(img *image.RGBA, n int, origin image.Point) {
	span := (n - 1) * cellSize
	line := image.NewUniform(gridColor)
	for i := 0; i < n; i++ {
		w := 1
		if i == 0 || i == n-1 {
			w = 2
		}
		y := origin.Y + i*cellSize
		imagedraw.Draw(img, image.Rect(origin.X, y, origin.X+span+1, y+w), line, image.Point{}, imagedraw.Src)
		x := origin.X + i*cellSize
		imagedraw.Draw(img, image.Rect(x, origin.Y, x+w, origin.Y+span+1), line, image.Point{}, imagedraw.Src)
	}
}

// hoshiPoints returns the star points: the centre plus the four 3-3 (or 4-4
// on boards from 13 up) points.
func hoshiPoints(n int) []omok.Point {
	if n < 9 {
		return []omok.Point{{Row: n / 2, Col: n / 2}}
	}
	off := 2
	if n >= 13 {
		off = 3
	}
	far := n - 1 - off
	pts := []omok.Point{{Row: off, Col: off}, {Row: off, Col: far}, {Row: far, Col: off}, {Row: far, Col: far}}
	if n%2 == 1 {
		pts = append(pts, omok.Point{Row: n / 2, Col: n / 2})
	}
	return pts
}

func drawHoshi(img *image.RGBA, n int, origin image.Point) {
	for _, p := range hoshiPoints(n) {
		fillCircle(img, center(origin, p.Row, p.Col), 4, hoshiColor)
	}
}

func drawStones(img *image.RGBA, cells [][]omok.Seat, origin image.Point) error {
	scaled := float64(cellSize) * stoneScale
	size := int(scaled)
	for r, row := range cells {
		for c, seat := range row {
			if !seat.Valid() {
				continue
			}
			stone, err := renderStoneImage(seat, size)
			if err != nil {
				return err
			}
			p := center(origin, r, c)
			dst := image.Rect(p.X-size/2, p.Y-size/2, p.X-size/2+size, p.Y-size/2+size)
			imagedraw.Draw(img, dst, stone, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func fillCircle(img *image.RGBA, c image.Point, radius float64, clr color.Color) {
	b := img.Bounds()
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), img, b)
	filler := rasterx.NewFiller(b.Dx(), b.Dy(), scanner)
	filler.SetColor(clr)
	rasterx.AddCircle(float64(c.X), float64(c.Y), radius, filler)
	filler.Draw()
}

func drawLabels(img *image.RGBA, n int, origin image.Point) {
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(labelColor)}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	bottom := origin.Y + (n-1)*cellSize + boardPadding + ascent + 6
	for i := 0; i < n; i++ {
		letter := strings.ToUpper(string(rune('a' + i)))
		x := origin.X + i*cellSize
		drawCenteredText(drawer, letter, x, bottom)

		num := strconv.Itoa(i + 1)
		y := origin.Y + i*cellSize + ascent/2
		drawCenteredText(drawer, num, sideMargin/2, y)
	}
}

func drawHUD(img *image.RGBA, boardRect image.Rectangle, opts Options) {
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	header := strings.TrimSpace(opts.Header)
	if header != "" {
		w := drawer.MeasureString(header).Round() + 32
		rect := image.Rect(boardRect.Min.X, 12, boardRect.Min.X+w, topMargin-12)
		drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
		drawCenteredString(drawer, rect, header, hudTextColor)
	}
	footer := strings.TrimSpace(opts.Footer)
	if footer != "" {
		w := drawer.MeasureString(footer).Round() + 32
		if w > boardRect.Dx() {
			w = boardRect.Dx()
		}
		left := boardRect.Min.X + (boardRect.Dx()-w)/2
		rect := image.Rect(left, boardRect.Max.Y+22, left+w, boardRect.Max.Y+bottomMargin-2)
		drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
		drawCenteredString(drawer, rect, footer, hudTextColor)
	}
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	maxRadius := rect.Dx() / 2
	if r := rect.Dy() / 2; r < maxRadius {
		maxRadius = r
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	fill := image.NewUniform(clr)
	if radius <= 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}
	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)

	// 모서리는 원을 채워 둥글게 만든다
	corners := []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	}
	for _, c := range corners {
		fillCircle(img, c, float64(radius), clr)
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
