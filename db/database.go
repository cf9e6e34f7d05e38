package db

import (
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// History is the download history store.
type History struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at dbPath and migrates the schema.
func Open(dbPath string, log *zap.SugaredLogger) (*History, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	// GORM writes through zap so SQL warnings land in the application log.
	newLogger := gormlogger.New(
		zap.NewStdLog(log.Desugar()),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	gdb, err := gorm.Open(gormlite.Open(dbPath), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := gdb.AutoMigrate(&DownloadRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return &History{db: gdb}, nil
}

// Record appends one terminal download event.
func (h *History) Record(rec *DownloadRecord) error {
	if err := h.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record download %s: %w", rec.AttemptID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first. A non-positive limit means 20.
func (h *History) Recent(limit int) ([]DownloadRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []DownloadRecord
	if err := h.db.Order("id desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load download history: %w", err)
	}
	return records, nil
}

// ForFile returns every recorded attempt for fileID, newest first.
func (h *History) ForFile(fileID int) ([]DownloadRecord, error) {
	var records []DownloadRecord
	if err := h.db.Where("file_id = ?", fileID).Order("id desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load history for file %d: %w", fileID, err)
	}
	return records, nil
}

// Close releases the underlying connection.
func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
