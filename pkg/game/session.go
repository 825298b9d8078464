package game

import (
	"strings"
	"sync"
	"time"

	"gridlock/pkg/models"
	"gridlock/pkg/rules"
)

// session is one game room's full mutable state. Every field below mu is
// guarded by it; the lock scope covers validate-then-mutate and snapshot
// capture, never I/O.
type session struct {
	id  string
	hub *hub

	mu         sync.Mutex
	playerX    string
	playerO    string
	scoreX     int
	scoreO     int
	board      rules.Board
	status     models.SessionStatus
	current    string
	winnerID   string
	winLine    []int
	version    uint64
	lastActive time.Time
}

func newSession(id string, engine rules.Engine) *session {
	return &session{
		id:         id,
		hub:        newHub(),
		board:      engine.NewBoard(),
		status:     models.StatusWaiting,
		lastActive: time.Now(),
	}
}

// sessionFromSnapshot rebuilds an in-memory session from a persisted
// snapshot. Subscribers are not persisted; the hub starts empty.
func sessionFromSnapshot(snap models.Snapshot) *session {
	return &session{
		id:         snap.GameID,
		hub:        newHub(),
		playerX:    snap.PlayerX,
		playerO:    snap.PlayerO,
		scoreX:     snap.PlayerXScore,
		scoreO:     snap.PlayerOScore,
		board:      rules.Board{Cells: snap.Board, SubWinners: snap.SubWinners, ActiveBoard: snap.ActiveBoard},
		status:     snap.Status,
		current:    snap.CurrentPlayerID,
		winnerID:   snap.WinnerID,
		winLine:    append([]int(nil), snap.WinningLine...),
		lastActive: time.Now(),
	}
}

// snapshotLocked captures an immutable copy of the session. Callers must
// hold mu.
func (s *session) snapshotLocked() models.Snapshot {
	return models.Snapshot{
		GameID:          s.id,
		PlayerX:         s.playerX,
		PlayerO:         s.playerO,
		PlayerXScore:    s.scoreX,
		PlayerOScore:    s.scoreO,
		Board:           s.board.Cells,
		SubWinners:      s.board.SubWinners,
		ActiveBoard:     s.board.ActiveBoard,
		Status:          s.status,
		CurrentPlayerID: s.current,
		WinnerID:        s.winnerID,
		WinningLine:     append([]int(nil), s.winLine...),
	}
}

// touchLocked marks the session as recently used. Callers must hold mu.
func (s *session) touchLocked() {
	s.lastActive = time.Now()
}

// turnHolderLocked derives whose turn it is from the board marks: X moves
// when the counts are equal, O when X is one ahead. Callers must hold mu.
func (s *session) turnHolderLocked() string {
	x := strings.Count(s.board.Cells, string(models.MarkX))
	o := strings.Count(s.board.Cells, string(models.MarkO))
	if x == o {
		return s.playerX
	}
	return s.playerO
}

// hasPlayerLocked reports whether the id occupies a slot. Callers must hold
// mu.
func (s *session) hasPlayerLocked(playerID string) bool {
	return playerID != "" && (s.playerX == playerID || s.playerO == playerID)
}
