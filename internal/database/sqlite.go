package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/sunridgelabs/fieldops/backend/internal/leaderboard"
	"github.com/sunridgelabs/fieldops/backend/internal/syncer"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection. Callers run Migrate before
// serving traffic.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if logger != nil {
		logger.Info("database opened", zap.String("path", path))
	}

	return db, nil
}

// Migrate applies the schema and the named data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&leaderboard.Competition{},
		&leaderboard.BonusTier{},
		&leaderboard.SignupRecord{},
		&syncer.SyncRun{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
