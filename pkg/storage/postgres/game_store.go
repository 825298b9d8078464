package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"gridlock/pkg/models"
	"gridlock/pkg/storage"
)

type GameStore struct {
	db *gorm.DB
}

// NewGameStore initializes the GORM connection and migrates the games table.
func NewGameStore(connString string) (*GameStore, error) {
	config := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GameRecord{}); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return &GameStore{db: db}, nil
}

func (s *GameStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save upserts the snapshot keyed by game_id.
func (s *GameStore) Save(ctx context.Context, snap models.Snapshot) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_id"}},
			UpdateAll: true,
		}).
		Create(snap.Record())
	if result.Error != nil {
		return fmt.Errorf("failed to save game %s: %w", snap.GameID, result.Error)
	}
	return nil
}

// Load retrieves a persisted snapshot.
func (s *GameStore) Load(ctx context.Context, gameID string) (models.Snapshot, error) {
	var rec models.GameRecord
	result := s.db.WithContext(ctx).First(&rec, "game_id = ?", gameID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return models.Snapshot{}, storage.ErrNotFound
		}
		return models.Snapshot{}, result.Error
	}
	return rec.Snapshot(), nil
}

// Delete removes the persisted record. Absent records are not an error.
func (s *GameStore) Delete(ctx context.Context, gameID string) error {
	result := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Delete(&models.GameRecord{})
	return result.Error
}

// FindByPlayer returns the id of a game the player occupies.
func (s *GameStore) FindByPlayer(ctx context.Context, playerID string) (string, error) {
	var rec models.GameRecord
	result := s.db.WithContext(ctx).
		Select("game_id").
		Where("player_x = ? OR player_o = ?", playerID, playerID).
		Limit(1).
		Find(&rec)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", storage.ErrNotFound
	}
	return rec.GameID, nil
}
