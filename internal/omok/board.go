// Package omok holds the pure board rules for five-in-a-row: seats, cells,
// move validity, win and draw detection. Nothing here is safe for concurrent
// mutation; callers serialise access per room.
package omok

import (
	"fmt"
	"strings"
)

// DefaultSize is the standard board side.
const DefaultSize = 15

// WinLength is the run length that wins.
const WinLength = 5

// Seat identifies a player role. NoSeat doubles as the empty cell value.
type Seat uint8

const (
	NoSeat Seat = iota
	Black
	White
)

func (s Seat) String() string {
	switch s {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return ""
	}
}

// Opponent returns the other seat; NoSeat stays NoSeat.
func (s Seat) Opponent() Seat {
	switch s {
	case Black:
		return White
	case White:
		return Black
	default:
		return NoSeat
	}
}

// Valid reports whether s is Black or White.
func (s Seat) Valid() bool { return s == Black || s == White }

// Index maps Black/White to 0/1 for two-slot arrays. Callers must check Valid.
func (s Seat) Index() int { return int(s) - 1 }

// ParseSeat accepts "black"/"white" (and b/w), case-insensitive.
func ParseSeat(v string) (Seat, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "black", "b":
		return Black, true
	case "white", "w":
		return White, true
	default:
		return NoSeat, false
	}
}

// Point is a (row, col) board coordinate.
type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Move is an accepted placement.
type Move struct {
	Row  int  `json:"row"`
	Col  int  `json:"col"`
	Seat Seat `json:"-"`
}

// Point returns the coordinate of the move.
func (m Move) Point() Point { return Point{Row: m.Row, Col: m.Col} }

// Label renders the move as column letter + 1-based row, e.g. "h8".
func (m Move) Label() string { return PointLabel(m.Row, m.Col) }

// PointLabel renders (row, col) as column letter + 1-based row.
func PointLabel(row, col int) string {
	if col < 0 || col >= 26 {
		return fmt.Sprintf("%d,%d", row, col)
	}
	return fmt.Sprintf("%c%d", 'a'+col, row+1)
}

// Board is a square grid of side n. A cell is NoSeat when empty.
type Board struct {
	size   int
	cells  []Seat
	filled int
}

// NewBoard returns an empty board; sizes below WinLength fall back to DefaultSize.
func NewBoard(n int) *Board {
	if n < WinLength {
		n = DefaultSize
	}
	return &Board{size: n, cells: make([]Seat, n*n)}
}

func (b *Board) Size() int { return b.size }

func (b *Board) InBounds(r, c int) bool {
	return r >= 0 && r < b.size && c >= 0 && c < b.size
}

// At returns the cell content; out-of-bounds reads as NoSeat.
func (b *Board) At(r, c int) Seat {
	if !b.InBounds(r, c) {
		return NoSeat
	}
	return b.cells[r*b.size+c]
}

// IsValidMove is true iff (r, c) is in bounds and empty.
func (b *Board) IsValidMove(r, c int) bool {
	return b.InBounds(r, c) && b.cells[r*b.size+c] == NoSeat
}

// Apply places seat at (r, c). The caller has already validated the move.
func (b *Board) Apply(r, c int, seat Seat) {
	i := r*b.size + c
	if b.cells[i] == NoSeat && seat != NoSeat {
		b.filled++
	}
	b.cells[i] = seat
}

// axes: horizontal, vertical, diagonal down-right, diagonal up-right.
var axes = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {-1, 1}}

// CheckWin reports whether the stone just played at (r, c) completes a run of
// at least WinLength along any axis through that cell.
func (b *Board) CheckWin(r, c int, seat Seat) bool {
	if !seat.Valid() || b.At(r, c) != seat {
		return false
	}
	for _, ax := range axes {
		count := 1
		count += b.run(r, c, ax[0], ax[1], seat)
		count += b.run(r, c, -ax[0], -ax[1], seat)
		if count >= WinLength {
			return true
		}
	}
	return false
}

// run counts contiguous seat stones from (r, c) exclusive in direction (dr, dc).
func (b *Board) run(r, c, dr, dc int, seat Seat) int {
	n := 0
	for {
		r, c = r+dr, c+dc
		if !b.InBounds(r, c) || b.cells[r*b.size+c] != seat {
			return n
		}
		n++
	}
}

// CheckDraw is true iff no empty cell remains. Evaluate only after CheckWin.
func (b *Board) CheckDraw() bool { return b.filled == len(b.cells) }

// Reset empties every cell.
func (b *Board) Reset() {
	for i := range b.cells {
		b.cells[i] = NoSeat
	}
	b.filled = 0
}

// Rows returns a copy of the grid, row-major.
func (b *Board) Rows() [][]Seat {
	out := make([][]Seat, b.size)
	for r := 0; r < b.size; r++ {
		row := make([]Seat, b.size)
		copy(row, b.cells[r*b.size:(r+1)*b.size])
		out[r] = row
	}
	return out
}

// String draws the board with '.', 'X' (black) and 'O' (white); handy in logs and tests.
func (b *Board) String() string {
	var sb strings.Builder
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			switch b.cells[r*b.size+c] {
			case Black:
				sb.WriteByte('X')
			case White:
				sb.WriteByte('O')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
