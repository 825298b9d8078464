package rules

import (
	"errors"
	"fmt"

	"gridlock/pkg/models"
)

// Variant selects which board shape a deployment runs. A process runs
// exactly one variant; the two board shapes are never mixed in one session.
type Variant string

const (
	VariantClassic  Variant = "classic"
	VariantUltimate Variant = "ultimate"
)

// Move validation failures. The session is left untouched when any of these
// is returned.
var (
	ErrOutOfRange   = errors.New("cell out of range")
	ErrCellOccupied = errors.New("cell already occupied")
	ErrWrongBoard   = errors.New("move outside the active sub-board")
)

// AnyBoard marks the active-board field when the next move may land in any
// open sub-board (ultimate variant only).
const AnyBoard = -1

// Move is a single placement. BoardX/BoardY address the sub-board in the
// ultimate variant and are ignored by the classic engine.
type Move struct {
	X, Y           int
	BoardX, BoardY int
}

// Board is the mutable playing surface handed to an engine. Cells is a flat
// run of '.', 'X', 'O'. SubWinners and ActiveBoard are empty/AnyBoard for
// the classic variant.
type Board struct {
	Cells       string
	SubWinners  string
	ActiveBoard int
}

// Outcome classifies the board after a successful move.
type Outcome struct {
	Status      models.SessionStatus // Playing, Won or Draw
	WinningLine []int
}

// Engine maps a board plus a completed move to a new board and a terminal
// state classification. Implementations are pure and stateless.
type Engine interface {
	Variant() Variant
	NewBoard() Board
	Apply(b Board, mv Move, mark byte) (Board, Outcome, error)
}

// ForVariant returns the engine for the configured variant.
func ForVariant(v Variant) (Engine, error) {
	switch v {
	case "", VariantClassic:
		return Classic{}, nil
	case VariantUltimate:
		return Ultimate{}, nil
	default:
		return nil, fmt.Errorf("unknown game variant %q", v)
	}
}

// winPatterns are the eight winning triples of a 3x3 grid.
var winPatterns = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// winningTriple returns the first triple of identical non-empty marks in a
// 9-cell grid, or nil.
func winningTriple(cells func(int) byte) []int {
	for _, p := range winPatterns {
		c := cells(p[0])
		if c != models.MarkEmpty && c == cells(p[1]) && c == cells(p[2]) {
			return []int{p[0], p[1], p[2]}
		}
	}
	return nil
}

func gridFull(cells func(int) byte) bool {
	for i := 0; i < 9; i++ {
		if cells(i) == models.MarkEmpty {
			return false
		}
	}
	return true
}
