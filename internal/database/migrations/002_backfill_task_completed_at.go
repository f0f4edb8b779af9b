package migrations

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// BackfillTaskCompletedAt stamps completed tasks that predate the
// completed_at column with their last update time, so the daily summary
// can count them
func BackfillTaskCompletedAt(ctx context.Context, db *gorm.DB, logger zerolog.Logger) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE tasks SET completed_at = updated_at WHERE completed = ? AND completed_at IS NULL`, true,
	)
	if result.Error != nil {
		return fmt.Errorf("failed to backfill completed_at: %w", result.Error)
	}

	logger.Info().Int64("rows", result.RowsAffected).Msg("Backfilled task completion times")
	return nil
}
