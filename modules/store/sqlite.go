package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/uvuchan/chanchu/domain/file"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fileRow is the SQLite representation of a file record.
type fileRow struct {
	ID           string    `gorm:"primarykey;size:36"`
	Position     int       `gorm:"not null;index"`
	FileName     string    `gorm:"size:255;not null"`
	RelativePath string    `gorm:"size:4096;not null"`
	UploadedBy   string    `gorm:"size:100;not null"`
	Size         int64     `gorm:"not null;default:0"`
	Timestamp    time.Time `gorm:"not null"`
}

// TableName returns the table name for fileRow.
func (fileRow) TableName() string {
	return "files"
}

func rowFromRecord(pos int, rec file.Record) fileRow {
	return fileRow{
		ID:           rec.ID,
		Position:     pos,
		FileName:     rec.FileName,
		RelativePath: rec.RelativePath,
		UploadedBy:   rec.UploadedBy,
		Size:         rec.Size,
		Timestamp:    rec.Timestamp,
	}
}

func (r fileRow) record() file.Record {
	return file.Record{
		ID:           r.ID,
		FileName:     r.FileName,
		RelativePath: r.RelativePath,
		UploadedBy:   r.UploadedBy,
		Size:         r.Size,
		Timestamp:    r.Timestamp.UTC(),
	}
}

// SQLiteStore persists records in an embedded SQLite database through gorm.
type SQLiteStore struct {
	db     *gorm.DB
	logger types.Logger
}

// NewSQLiteStore opens (or creates) the database at dsn and migrates the
// files table. Use ":memory:" for an in-process database.
func NewSQLiteStore(dsn string, logger types.Logger) (*SQLiteStore, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&fileRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func gormLogger() logger.Interface {
	level := logger.Silent
	if os.Getenv("DB_DEBUG") == "true" {
		level = logger.Info
	}
	return logger.Default.LogMode(level)
}

// LoadAll returns the stored records ordered by insertion position. Query
// failures are logged and yield no records.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]file.Record, error) {
	var rows []fileRow
	if err := s.db.WithContext(ctx).Order("position asc").Find(&rows).Error; err != nil {
		s.logger.Warn("Failed to read metadata table, starting empty", "error", err)
		return []file.Record{}, nil
	}

	records := make([]file.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// Persist replaces the table contents with records in one transaction.
func (s *SQLiteStore) Persist(ctx context.Context, records []file.Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&fileRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear files: %w", err)
		}
		if len(records) == 0 {
			return nil
		}

		rows := make([]fileRow, 0, len(records))
		for i, rec := range records {
			rows = append(rows, rowFromRecord(i, rec))
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("failed to write files: %w", err)
		}
		return nil
	})
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
