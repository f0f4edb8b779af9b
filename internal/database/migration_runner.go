package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// MigrationFunc performs one versioned data or index change
type MigrationFunc func(ctx context.Context, db *gorm.DB, logger zerolog.Logger) error

// Migration is a named, versioned change applied once per database
type Migration struct {
	Version string
	Name    string
	Run     MigrationFunc
}

// MigrationRunner applies versioned migrations in order and records them
// in schema_migrations
type MigrationRunner struct {
	db         *gorm.DB
	logger     zerolog.Logger
	migrations []Migration
}

func NewMigrationRunner(db *gorm.DB, logger zerolog.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:     db,
		logger: logger.With().Str("component", "migrations").Logger(),
	}
}

// Register adds migrations to the runner
func (r *MigrationRunner) Register(migrations ...Migration) {
	r.migrations = append(r.migrations, migrations...)
}

// Run executes every pending migration, each in its own transaction
func (r *MigrationRunner) Run(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.Migration{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	pending, err := r.GetPendingMigrations(ctx)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		log := r.logger.With().
			Str("version", migration.Version).
			Str("name", migration.Name).
			Logger()
		log.Info().Msg("Running migration")

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Run(ctx, tx, log); err != nil {
				return fmt.Errorf("migration %s failed: %w", migration.Version, err)
			}
			record := &models.Migration{
				Version:   migration.Version,
				Name:      migration.Name,
				AppliedAt: time.Now().UTC(),
			}
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.Info().Msg("Migration completed successfully")
	}

	return nil
}

// GetPendingMigrations returns the registered migrations not yet applied,
// ordered by version
func (r *MigrationRunner) GetPendingMigrations(ctx context.Context) ([]Migration, error) {
	var applied []string
	if err := r.db.WithContext(ctx).Model(&models.Migration{}).Pluck("version", &applied).Error; err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool, len(applied))
	for _, v := range applied {
		appliedMap[v] = true
	}

	sorted := make([]Migration, len(r.migrations))
	copy(sorted, r.migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	var pending []Migration
	for _, migration := range sorted {
		if appliedMap[migration.Version] {
			r.logger.Debug().Str("version", migration.Version).Msg("Migration already applied, skipping")
			continue
		}
		pending = append(pending, migration)
	}

	return pending, nil
}
