package rules

import "gridlock/pkg/models"

// Classic is the flat 3x3 engine. Cell index is x*3+y.
type Classic struct{}

func (Classic) Variant() Variant { return VariantClassic }

func (Classic) NewBoard() Board {
	return Board{Cells: ".........", ActiveBoard: AnyBoard}
}

func (Classic) Apply(b Board, mv Move, mark byte) (Board, Outcome, error) {
	if mv.X < 0 || mv.X > 2 || mv.Y < 0 || mv.Y > 2 {
		return b, Outcome{}, ErrOutOfRange
	}
	idx := mv.X*3 + mv.Y
	if b.Cells[idx] != models.MarkEmpty {
		return b, Outcome{}, ErrCellOccupied
	}

	cells := []byte(b.Cells)
	cells[idx] = mark
	b.Cells = string(cells)

	at := func(i int) byte { return b.Cells[i] }
	if line := winningTriple(at); line != nil {
		return b, Outcome{Status: models.StatusWon, WinningLine: line}, nil
	}
	if gridFull(at) {
		return b, Outcome{Status: models.StatusDraw}, nil
	}
	return b, Outcome{Status: models.StatusPlaying}, nil
}
