package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// snapshotRow is the gorm model backing SQLiteStore. Snapshots are stored
// whole as JSON blobs; every Save appends a new row, and Load returns the
// newest, keeping earlier snapshots available for manual recovery.
type snapshotRow struct {
	ID      uint      `gorm:"primaryKey"`
	SavedAt time.Time `gorm:"index"`
	Data    []byte
}

func (snapshotRow) TableName() string { return "snapshots" }

// SQLiteStore persists snapshots in an embedded SQLite database.
type SQLiteStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// snapshot table.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite_store")),
	}, nil
}

// Save appends the snapshot as a new row.
func (s *SQLiteStore) Save(ctx context.Context, snapshot *Snapshot) error {
	data, err := snapshot.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	row := snapshotRow{SavedAt: snapshot.SavedAt, Data: data}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved", zap.Uint("row_id", row.ID), zap.Int("bytes", len(data)))
	return nil
}

// Load returns the most recently saved snapshot, or (nil, nil) when the
// table is empty.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return Decode(row.Data)
}
