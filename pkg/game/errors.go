package game

import "errors"

// Precondition violations reported to callers as typed rejections. The
// session is never mutated when one of these is returned. Board-level
// failures (occupied cell, out of range, wrong sub-board) come from
// pkg/rules.
var (
	// ErrNotFound is returned when a game id has no in-memory or
	// persisted record.
	ErrNotFound = errors.New("game not found")

	// ErrInvalidState is returned for a move against a session that is
	// not in progress.
	ErrInvalidState = errors.New("game is not in progress")

	// ErrNotYourTurn is returned when the caller is not the current
	// player.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrGameFull is returned when joining a session that already has two
	// other players.
	ErrGameFull = errors.New("game already has two players")

	// ErrPersist is returned when a mutation was applied and broadcast but
	// the snapshot could not be written to the store.
	ErrPersist = errors.New("failed to persist game snapshot")
)
