package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/finai-nexus/execution-core/internal/audit"
	"github.com/finai-nexus/execution-core/internal/router"
	"github.com/finai-nexus/execution-core/internal/types"
)

// NewDatabase initializes a GORM connection at the given path and migrates
// the execution core's schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Order{},
		&router.IdempotencyRecord{},
		&audit.Event{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
