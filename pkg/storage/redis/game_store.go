package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gridlock/pkg/models"
	"gridlock/pkg/storage"
)

const (
	gameKeyPrefix   = "games:snapshot:"
	playerKeyPrefix = "games:player:"
)

// GameStore keeps snapshots as JSON values plus a player-to-game index, for
// deployments that back persistence with Redis instead of Postgres.
type GameStore struct {
	client *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// NewGameStore connects with default config.
func NewGameStore(addr string) (*GameStore, error) {
	return NewGameStoreWithConfig(DefaultConfig(addr))
}

// NewGameStoreWithConfig connects and verifies the connection.
func NewGameStoreWithConfig(cfg Config) (*GameStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &GameStore{client: client}, nil
}

func (s *GameStore) Close() error {
	return s.client.Close()
}

// Save upserts the snapshot and refreshes the player index.
func (s *GameStore) Save(ctx context.Context, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, gameKeyPrefix+snap.GameID, payload, 0)
	// Drop index entries for players who vacated their slot since the last
	// save, so FindByPlayer never points at a game they left.
	if prev, err := s.Load(ctx, snap.GameID); err == nil {
		for _, p := range []string{prev.PlayerX, prev.PlayerO} {
			if p != "" && p != snap.PlayerX && p != snap.PlayerO {
				pipe.Del(ctx, playerKeyPrefix+p)
			}
		}
	}
	if snap.PlayerX != "" {
		pipe.Set(ctx, playerKeyPrefix+snap.PlayerX, snap.GameID, 0)
	}
	if snap.PlayerO != "" {
		pipe.Set(ctx, playerKeyPrefix+snap.PlayerO, snap.GameID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save game %s: %w", snap.GameID, err)
	}
	return nil
}

// Load retrieves a persisted snapshot.
func (s *GameStore) Load(ctx context.Context, gameID string) (models.Snapshot, error) {
	payload, err := s.client.Get(ctx, gameKeyPrefix+gameID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return models.Snapshot{}, storage.ErrNotFound
		}
		return models.Snapshot{}, fmt.Errorf("failed to load game %s: %w", gameID, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes the snapshot and any player index entries pointing at it.
func (s *GameStore) Delete(ctx context.Context, gameID string) error {
	snap, err := s.Load(ctx, gameID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, gameKeyPrefix+gameID)
	if snap.PlayerX != "" {
		pipe.Del(ctx, playerKeyPrefix+snap.PlayerX)
	}
	if snap.PlayerO != "" {
		pipe.Del(ctx, playerKeyPrefix+snap.PlayerO)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// FindByPlayer resolves a player to their active game via the index.
func (s *GameStore) FindByPlayer(ctx context.Context, playerID string) (string, error) {
	gameID, err := s.client.Get(ctx, playerKeyPrefix+playerID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to look up player %s: %w", playerID, err)
	}
	return gameID, nil
}
