package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// SessionStatus represents the lifecycle state of a game session.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "Waiting"
	StatusPlaying SessionStatus = "Playing"
	StatusWon     SessionStatus = "Won"
	StatusDraw    SessionStatus = "Draw"
)

// Terminal reports whether the round has ended.
func (s SessionStatus) Terminal() bool {
	return s == StatusWon || s == StatusDraw
}

// Marks used on the board. Empty cells are '.'.
const (
	MarkEmpty byte = '.'
	MarkX     byte = 'X'
	MarkO     byte = 'O'
)

// WinningLine is the ordered list of cell indices forming the winning
// triple. Stored as jsonb.
type WinningLine []int

func (w *WinningLine) Scan(value interface{}) error {
	if value == nil {
		*w = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, w)
}

func (w WinningLine) Value() (driver.Value, error) {
	if w == nil {
		return json.Marshal([]int{})
	}
	return json.Marshal(w)
}

// GameRecord is the persisted form of a game session, keyed by GameID.
// Save is an idempotent upsert; last write wins.
type GameRecord struct {
	GameID          string        `json:"game_id" gorm:"primaryKey;size:128"`
	PlayerX         string        `json:"player_x" gorm:"size:128;index"`
	PlayerO         string        `json:"player_o" gorm:"size:128;index"`
	PlayerXScore    int           `json:"player_x_score"`
	PlayerOScore    int           `json:"player_o_score"`
	Board           string        `json:"board" gorm:"not null"`
	SubWinners      string        `json:"sub_winners"`
	ActiveBoard     int           `json:"active_board" gorm:"default:-1"`
	Status          SessionStatus `json:"status" gorm:"type:varchar(16);not null;default:'Waiting'"`
	CurrentPlayerID string        `json:"current_player_id" gorm:"size:128"`
	WinnerID        string        `json:"winner_id" gorm:"size:128"`
	WinningLine     WinningLine   `json:"winning_line" gorm:"type:jsonb"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Snapshot is an immutable point-in-time copy of a session, safe to hand to
// callers, subscribers, or the store without further synchronization.
type Snapshot struct {
	GameID          string        `json:"game_id"`
	PlayerX         string        `json:"player_x"`
	PlayerO         string        `json:"player_o"`
	PlayerXScore    int           `json:"player_x_score"`
	PlayerOScore    int           `json:"player_o_score"`
	Board           string        `json:"board"`
	SubWinners      string        `json:"sub_winners,omitempty"`
	ActiveBoard     int           `json:"active_board"`
	Status          SessionStatus `json:"status"`
	CurrentPlayerID string        `json:"current_player_id"`
	WinnerID        string        `json:"winner_id,omitempty"`
	WinningLine     []int         `json:"winning_line,omitempty"`
}

// Record converts a snapshot to its persisted form.
func (s Snapshot) Record() *GameRecord {
	return &GameRecord{
		GameID:          s.GameID,
		PlayerX:         s.PlayerX,
		PlayerO:         s.PlayerO,
		PlayerXScore:    s.PlayerXScore,
		PlayerOScore:    s.PlayerOScore,
		Board:           s.Board,
		SubWinners:      s.SubWinners,
		ActiveBoard:     s.ActiveBoard,
		Status:          s.Status,
		CurrentPlayerID: s.CurrentPlayerID,
		WinnerID:        s.WinnerID,
		WinningLine:     append(WinningLine(nil), s.WinningLine...),
	}
}

// Snapshot converts a persisted record back to a snapshot.
func (r *GameRecord) Snapshot() Snapshot {
	return Snapshot{
		GameID:          r.GameID,
		PlayerX:         r.PlayerX,
		PlayerO:         r.PlayerO,
		PlayerXScore:    r.PlayerXScore,
		PlayerOScore:    r.PlayerOScore,
		Board:           r.Board,
		SubWinners:      r.SubWinners,
		ActiveBoard:     r.ActiveBoard,
		Status:          r.Status,
		CurrentPlayerID: r.CurrentPlayerID,
		WinnerID:        r.WinnerID,
		WinningLine:     append([]int(nil), r.WinningLine...),
	}
}
