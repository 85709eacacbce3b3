// Package store provides sqlite-backed repositories for queue items,
// schedules, and rooms.
package store

import (
	"github.com/cockroachdb/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/queue"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/room"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/schedule"
)

// ErrNotFound indicates the referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Open opens the sqlite database and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.AutoMigrate(&queue.Item{}, &schedule.Schedule{}, &room.Room{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	return db, nil
}

// Close releases database resources.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
