package migrations

import (
	"github.com/ksred/plansmart/internal/database"
)

// GetMigrations returns all versioned migrations in the order they were written
func GetMigrations() []database.Migration {
	return []database.Migration{
		{
			Version: "20250301_001",
			Name:    "add_reminder_indexes",
			Run:     AddReminderIndexes,
		},
		{
			Version: "20250301_002",
			Name:    "backfill_task_completed_at",
			Run:     BackfillTaskCompletedAt,
		},
	}
}
