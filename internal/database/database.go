package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info("connected to database", "host", cfg.Host, "database", cfg.Name)

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Group{},
		&models.Address{},
		&models.User{},
		&models.UserGroup{},
		&models.Token{},
	); err != nil {
		return err
	}

	// Usernames are matched case-insensitively, so uniqueness must be too.
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))").Error; err != nil {
		return fmt.Errorf("creating username index: %w", err)
	}
	return nil
}

// SeedGroups inserts the fixed role groups; existing rows are left alone.
func SeedGroups(ctx context.Context, db *gorm.DB) error {
	groups := make([]models.Group, len(models.DefaultGroups))
	copy(groups, models.DefaultGroups)

	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&groups).Error; err != nil {
		return fmt.Errorf("seeding groups: %w", err)
	}
	return nil
}
