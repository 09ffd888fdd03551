package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SnapshotRecord is one persisted coordinator blob, keyed by room name. The
// blob is opaque to the store; the engine owns its schema.
type SnapshotRecord struct {
	Room      string `gorm:"primaryKey"`
	Blob      []byte
	UpdatedAt time.Time
}

// Store persists market snapshots in an embedded SQLite database.
type Store struct {
	db *gorm.DB
}

// NewStore opens (creating if needed) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveSnapshot upserts the blob for a room.
func (s *Store) SaveSnapshot(room string, blob []byte) error {
	record := SnapshotRecord{Room: room, Blob: blob, UpdatedAt: time.Now()}
	return s.db.Save(&record).Error
}

// LoadSnapshot returns the stored blob for a room, or (nil, nil) when none
// exists; a missing snapshot is a cold start, not an error.
func (s *Store) LoadSnapshot(room string) ([]byte, error) {
	var record SnapshotRecord
	err := s.db.First(&record, "room = ?", room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record.Blob, nil
}
