package storage

import (
	"context"
	"errors"

	"gridlock/pkg/models"
)

var ErrNotFound = errors.New("record not found")

// GameStore is the persistence contract for session snapshots. Save is an
// idempotent upsert keyed by game id; last write wins. Load returns
// ErrNotFound for an unknown id rather than an empty record.
type GameStore interface {
	// Save upserts the snapshot.
	Save(ctx context.Context, snap models.Snapshot) error

	// Load retrieves the persisted snapshot for a game id.
	Load(ctx context.Context, gameID string) (models.Snapshot, error)

	// Delete removes the persisted record. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, gameID string) error

	// FindByPlayer returns the game id of a session the player occupies,
	// or ErrNotFound.
	FindByPlayer(ctx context.Context, playerID string) (string, error)

	Close() error
}
