package database

import (
	"strings"

	"github.com/rosa/ecogoals-sync/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database named by url. Postgres when the URL says
// so, SQLite otherwise (a file path or an in-memory DSN).
func Open(url string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	if strings.HasPrefix(url, "postgres") {
		dialector = postgres.Open(url)
	} else {
		dialector = sqlite.Open(url)
	}

	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// MigrateStore creates the LocalStore tables (client side).
func MigrateStore(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CacheEntry{},
		&models.OfflineChange{},
		&models.Tombstone{},
		&models.SyncMeta{},
	)
}

// MigrateServer creates the dev server tables.
func MigrateServer(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Goal{},
	)
}
