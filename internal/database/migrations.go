package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"gorm.io/gorm"
)

// SystemUserID is the reserved user that owns data created over MCP stdio
const SystemUserID = 1

// SystemUsername is the login name of the system user. It cannot log in.
const SystemUsername = "system"

// AllModels lists every table the service owns, in dependency order
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.APIKey{},
		&models.Task{},
		&models.Schedule{},
		&models.Reminder{},
		&models.Request{},
		&models.Response{},
		&models.ActivityLog{},
	}
}

// RunMigrations creates or updates the schema and ensures the system user exists
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to run auto-migrations: %w", err)
	}

	if err := createSystemUser(ctx, db); err != nil {
		return fmt.Errorf("failed to create system user: %w", err)
	}

	return nil
}

func createSystemUser(ctx context.Context, db *gorm.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", SystemUserID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	err := db.WithContext(ctx).Exec(
		"INSERT INTO users (id, username, password, is_guest, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		SystemUserID, SystemUsername, "no-login", false, now, now,
	).Error
	if err != nil {
		return err
	}
	return syncUserSequence(ctx, db)
}

// syncUserSequence moves the postgres id sequence past the explicitly
// inserted system user. sqlite picks max(rowid)+1 on its own.
func syncUserSequence(ctx context.Context, db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.WithContext(ctx).Exec(
		"SELECT setval(pg_get_serial_sequence('users', 'id'), (SELECT MAX(id) FROM users))",
	).Error
}
