package migrations

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// AddReminderIndexes adds the composite indexes used by the restore pass and
// the per-user task listing
func AddReminderIndexes(ctx context.Context, db *gorm.DB, logger zerolog.Logger) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_reminders_status_remind_at ON reminders(status, remind_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_completed ON tasks(user_id, completed)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_user_start ON schedules(user_id, start_time)`,
	}

	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	logger.Info().Int("indexes", len(statements)).Msg("Reminder indexes created")
	return nil
}
