package rules

import (
	"strings"

	"gridlock/pkg/models"
)

// markDrawn records a sub-board that filled up without a winner. It never
// matches a player mark in the meta-grid win check.
const markDrawn byte = 'D'

// Ultimate is the composite 9x9 engine: nine 3x3 sub-boards plus a meta-grid
// of sub-board winners. A move must land in the sub-board matching the cell
// position of the previous move, unless that sub-board is already decided.
type Ultimate struct{}

func (Ultimate) Variant() Variant { return VariantUltimate }

func (Ultimate) NewBoard() Board {
	return Board{
		Cells:       strings.Repeat(".", 81),
		SubWinners:  ".........",
		ActiveBoard: AnyBoard,
	}
}

func (Ultimate) Apply(b Board, mv Move, mark byte) (Board, Outcome, error) {
	if mv.BoardX < 0 || mv.BoardX > 2 || mv.BoardY < 0 || mv.BoardY > 2 ||
		mv.X < 0 || mv.X > 2 || mv.Y < 0 || mv.Y > 2 {
		return b, Outcome{}, ErrOutOfRange
	}

	sub := mv.BoardX*3 + mv.BoardY
	if b.SubWinners[sub] != models.MarkEmpty {
		return b, Outcome{}, ErrWrongBoard
	}
	if b.ActiveBoard != AnyBoard && sub != b.ActiveBoard {
		return b, Outcome{}, ErrWrongBoard
	}

	cell := mv.X*3 + mv.Y
	idx := sub*9 + cell
	if b.Cells[idx] != models.MarkEmpty {
		return b, Outcome{}, ErrCellOccupied
	}

	cells := []byte(b.Cells)
	cells[idx] = mark
	b.Cells = string(cells)

	// Settle the sub-board just played.
	inSub := func(i int) byte { return b.Cells[sub*9+i] }
	if winningTriple(inSub) != nil {
		b.SubWinners = setMark(b.SubWinners, sub, mark)
	} else if gridFull(inSub) {
		b.SubWinners = setMark(b.SubWinners, sub, markDrawn)
	}

	// The next active sub-board mirrors the cell just played, falling back
	// to any open sub-board once the target is decided.
	b.ActiveBoard = cell
	if b.SubWinners[cell] != models.MarkEmpty {
		b.ActiveBoard = AnyBoard
	}

	meta := func(i int) byte {
		c := b.SubWinners[i]
		if c == markDrawn {
			return models.MarkEmpty
		}
		return c
	}
	if line := winningTriple(meta); line != nil {
		return b, Outcome{Status: models.StatusWon, WinningLine: line}, nil
	}
	if !strings.ContainsRune(b.SubWinners, rune(models.MarkEmpty)) {
		return b, Outcome{Status: models.StatusDraw}, nil
	}
	return b, Outcome{Status: models.StatusPlaying}, nil
}

func setMark(s string, i int, mark byte) string {
	bs := []byte(s)
	bs[i] = mark
	return string(bs)
}
