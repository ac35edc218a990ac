package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entry is one row of the local hand-off table.
type entry struct {
	Slot      string `gorm:"column:slot;primaryKey"`
	Value     string `gorm:"column:value;not null"`
	UpdatedAt time.Time
}

func (entry) TableName() string { return "workink_handoff" }

// SQLite keeps the slot in a local database file through gorm.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at dsn.
func OpenSQLite(dsn string, logger *zap.Logger) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: NewGormLogger(logger)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	return NewSQLite(db)
}

// NewSQLite migrates the hand-off table on an existing connection.
func NewSQLite(db *gorm.DB) (*SQLite, error) {
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrate handoff table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	row := entry{Slot: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: sqlite upsert: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key, def string) (string, error) {
	var row entry
	err := s.db.WithContext(ctx).Where("slot = ?", key).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return def, nil
	case err != nil:
		return def, fmt.Errorf("%w: sqlite select: %w", ErrUnavailable, err)
	}
	return row.Value, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("slot = ?", key).Delete(&entry{}).Error; err != nil {
		return fmt.Errorf("%w: sqlite delete: %w", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
