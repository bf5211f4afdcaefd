package persistence

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mu-hashmi/revis/internal/domain/entity"
)

// Open connects to the session's embedded SQLite database file and runs
// additive auto-migration: on open, GORM inspects existing tables and
// backfills any missing table or column without ever dropping or renaming
// one, satisfying the store's schema-evolution durability requirement.
func Open(dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dsn, err)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Session{},
		&entity.Run{},
		&entity.Metric{},
		&entity.Artifact{},
		&entity.Decision{},
		&entity.Suggestion{},
		&entity.Trace{},
	)
}
