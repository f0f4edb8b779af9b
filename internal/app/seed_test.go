package app

import (
	"context"
	"testing"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSeedDemo(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	db, err := Connect(ctx, cfg, "silent", zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	first, err := SeedDemo(ctx, db, now)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, len(demoTasks), first.Tasks)
	assert.Equal(t, len(demoSchedules), first.Schedules)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(first.User.Password), []byte(DemoPassword)))

	var standup models.Schedule
	require.NoError(t, db.DB().Where("title = ?", "Team Standup").First(&standup).Error)
	assert.True(t, standup.StartTime.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)))

	var done models.Task
	require.NoError(t, db.DB().Where("description = ?", "Send weekly status update").First(&done).Error)
	assert.True(t, done.Completed)

	t.Run("reseed clears previous data", func(t *testing.T) {
		second, err := SeedDemo(ctx, db, now)
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, first.User.ID, second.User.ID)

		var tasks, schedules int64
		db.DB().Model(&models.Task{}).Where("user_id = ?", second.User.ID).Count(&tasks)
		db.DB().Model(&models.Schedule{}).Where("user_id = ?", second.User.ID).Count(&schedules)
		assert.EqualValues(t, len(demoTasks), tasks)
		assert.EqualValues(t, len(demoSchedules), schedules)
	})
}
