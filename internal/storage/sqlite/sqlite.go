// Package sqlite opens a SQLite-backed store via GORM.
// Uses modernc.org/sqlite (pure Go, no CGO) through the glebarez/sqlite GORM
// driver. The repositories themselves live in the postgres package — SQLite
// runs the same GORM models, so Open returns the shared Store type.
//
// Key differences from the PostgreSQL backend:
//   - WAL mode enabled by default for concurrent reads
//   - No connection pooling (single file, WAL handles concurrency)
package sqlite

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quillhq/quill/internal/storage"
	pgstore "github.com/quillhq/quill/internal/storage/postgres"
)

// Open creates a SQLite-backed store and runs AutoMigrate.
func Open(cfg storage.Config, slogger *slog.Logger) (*pgstore.Store, error) {
	path := cfg.Path
	if path == "" {
		path = "quill.db"
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)

	gormLogger := logger.New(
		slogWriter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if err := pgstore.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrating sqlite: %w", err)
	}

	slogger.Info("sqlite store opened", slog.String("path", path))
	return pgstore.NewStore(pgstore.NewDBFromGorm(db, slogger), storage.DriverSQLite), nil
}

// slogWriter adapts *slog.Logger to GORM's logger.Writer interface.
type slogWriter struct {
	logger *slog.Logger
}

func (s slogWriter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
