package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pulseboard/pulseboard/backend/internal/models"
)

// Open connects to PostgreSQL when dsn is a postgres:// URL and to SQLite otherwise.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		return db, nil
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(dsn)), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return db, nil
}

// sqliteDSN adds a busy timeout so concurrent probe completions queue instead of failing.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// Migrate creates or updates every table the engine uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Platform{},
		&models.App{},
		&models.Component{},
		&models.Incident{},
		&models.IncidentUpdate{},
		&models.IncidentComponent{},
		&models.Maintenance{},
		&models.MaintenanceComponent{},
		&models.UptimeHistory{},
		&models.CheckHeartbeat{},
		&models.Setting{},
		&models.Notification{},
		&models.NotificationProvider{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
