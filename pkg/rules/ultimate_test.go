package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridlock/pkg/models"
)

func mustApply(t *testing.T, b Board, mv Move, mark byte) (Board, Outcome) {
	t.Helper()
	b, out, err := Ultimate{}.Apply(b, mv, mark)
	require.NoError(t, err)
	return b, out
}

func TestUltimateNewBoard(t *testing.T) {
	b := Ultimate{}.NewBoard()
	assert.Len(t, b.Cells, 81)
	assert.Equal(t, ".........", b.SubWinners)
	assert.Equal(t, AnyBoard, b.ActiveBoard)
}

func TestUltimateActiveBoardFollowsCell(t *testing.T) {
	b := Ultimate{}.NewBoard()

	// First move is free; it lands at cell (1,2) of sub-board (0,0), so
	// the next move is pinned to sub-board index 1*3+2=5.
	b, _ = mustApply(t, b, Move{BoardX: 0, BoardY: 0, X: 1, Y: 2}, models.MarkX)
	assert.Equal(t, 5, b.ActiveBoard)

	// Playing anywhere else is rejected.
	_, _, err := Ultimate{}.Apply(b, Move{BoardX: 0, BoardY: 0, X: 0, Y: 0}, models.MarkO)
	assert.ErrorIs(t, err, ErrWrongBoard)

	// Sub-board 5 is (1,2).
	b, _ = mustApply(t, b, Move{BoardX: 1, BoardY: 2, X: 0, Y: 0}, models.MarkO)
	assert.Equal(t, 0, b.ActiveBoard)
}

func TestUltimateRejectsOutOfRange(t *testing.T) {
	e := Ultimate{}
	for _, mv := range []Move{
		{BoardX: 3, BoardY: 0, X: 0, Y: 0},
		{BoardX: 0, BoardY: -1, X: 0, Y: 0},
		{BoardX: 0, BoardY: 0, X: 3, Y: 0},
		{BoardX: 0, BoardY: 0, X: 0, Y: -1},
	} {
		_, _, err := e.Apply(e.NewBoard(), mv, models.MarkX)
		assert.ErrorIs(t, err, ErrOutOfRange, "move %+v", mv)
	}
}

func TestUltimateRejectsOccupiedCell(t *testing.T) {
	b := Ultimate{}.NewBoard()
	b, _ = mustApply(t, b, Move{BoardX: 0, BoardY: 0, X: 0, Y: 0}, models.MarkX)

	// Cell (0,0) of sub-board 0 is taken; the active board is also 0, so
	// replaying the same cell trips the occupancy check, not the board
	// check.
	_, _, err := Ultimate{}.Apply(b, Move{BoardX: 0, BoardY: 0, X: 0, Y: 0}, models.MarkO)
	assert.ErrorIs(t, err, ErrCellOccupied)
}

// winSubBoard hands sub-board `sub` to `mark` by writing the top row
// directly. Tests that exercise the meta-grid build positions this way
// instead of scripting full legal games.
func winSubBoard(b Board, sub int, mark byte) Board {
	cells := []byte(b.Cells)
	for i := 0; i < 3; i++ {
		cells[sub*9+i] = mark
	}
	b.Cells = string(cells)
	b.SubWinners = setMark(b.SubWinners, sub, mark)
	return b
}

func TestUltimateSubBoardWinRecorded(t *testing.T) {
	b := Ultimate{}.NewBoard()
	b.ActiveBoard = AnyBoard

	// X takes the top row of sub-board 4. Alternate legal O moves are
	// irrelevant here, so drive the engine with a free active board.
	for y := 0; y < 3; y++ {
		b, _ = mustApply(t, b, Move{BoardX: 1, BoardY: 1, X: 0, Y: y}, models.MarkX)
		b.ActiveBoard = AnyBoard
	}
	assert.Equal(t, byte(models.MarkX), b.SubWinners[4])
}

func TestUltimateDecidedSubBoardRejectsMoves(t *testing.T) {
	b := Ultimate{}.NewBoard()
	b = winSubBoard(b, 0, models.MarkX)
	b.ActiveBoard = AnyBoard

	_, _, err := Ultimate{}.Apply(b, Move{BoardX: 0, BoardY: 0, X: 2, Y: 2}, models.MarkO)
	assert.ErrorIs(t, err, ErrWrongBoard)
}

func TestUltimateRedirectToDecidedBoardFreesChoice(t *testing.T) {
	b := Ultimate{}.NewBoard()
	b = winSubBoard(b, 5, models.MarkO)
	b.ActiveBoard = AnyBoard

	// The move lands at cell 5, which would pin the next player to the
	// already-decided sub-board 5, so the pin is lifted.
	b, _ = mustApply(t, b, Move{BoardX: 0, BoardY: 0, X: 1, Y: 2}, models.MarkX)
	assert.Equal(t, AnyBoard, b.ActiveBoard)
}

func TestUltimateMetaGridWin(t *testing.T) {
	b := Ultimate{}.NewBoard()
	b = winSubBoard(b, 0, models.MarkX)
	b = winSubBoard(b, 1, models.MarkX)
	b.ActiveBoard = 2

	// X completes the top row of sub-board 2, winning it and with it the
	// top row of the meta-grid.
	b, _ = mustApply(t, b, Move{BoardX: 0, BoardY: 2, X: 0, Y: 0}, models.MarkX)
	b.ActiveBoard = 2
	b, _ = mustApply(t, b, Move{BoardX: 0, BoardY: 2, X: 0, Y: 1}, models.MarkX)
	b.ActiveBoard = 2
	_, out := mustApply(t, b, Move{BoardX: 0, BoardY: 2, X: 0, Y: 2}, models.MarkX)

	assert.Equal(t, models.StatusWon, out.Status)
	assert.ElementsMatch(t, []int{0, 1, 2}, out.WinningLine)
}

func TestUltimateDrawnSubBoardNeverWinsMetaGrid(t *testing.T) {
	b := Ultimate{}.NewBoard()
	b = winSubBoard(b, 0, models.MarkX)
	b = winSubBoard(b, 2, models.MarkX)
	b.SubWinners = setMark(b.SubWinners, 1, markDrawn)
	b.ActiveBoard = AnyBoard

	// Top meta row is X, D, X. A throwaway move elsewhere must not
	// report a win.
	_, out := mustApply(t, b, Move{BoardX: 1, BoardY: 0, X: 0, Y: 0}, models.MarkO)
	assert.Equal(t, models.StatusPlaying, out.Status)
}

func TestUltimateDrawWhenAllSubBoardsDecided(t *testing.T) {
	b := Ultimate{}.NewBoard()
	// X D O / O X X ... arranged so no meta line exists once the last
	// sub-board settles.
	layout := "XDOOXXDO." // sub-board 8 still open
	for i, c := range []byte(layout) {
		if c != models.MarkEmpty {
			b.SubWinners = setMark(b.SubWinners, i, c)
		}
	}
	// Meta lines so far: rows XDO, OXX; cols XOD wait for the last cell.
	// Fill sub-board 8 to a draw by hand, leaving one cell for the move.
	cells := []byte(b.Cells)
	final := "XXOOOXXO." // last cell placed by the move below
	for i := 0; i < 8; i++ {
		cells[8*9+i] = final[i]
	}
	b.Cells = string(cells)
	b.ActiveBoard = 8

	b, out := mustApply(t, b, Move{BoardX: 2, BoardY: 2, X: 2, Y: 2}, models.MarkO)
	assert.Equal(t, models.StatusDraw, out.Status)
	assert.Equal(t, "XDOOXXDOD", b.SubWinners)
}
