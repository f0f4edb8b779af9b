package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/scheduler"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reminderStatus(t *testing.T, env *testEnv, id uint) string {
	t.Helper()
	var r models.Reminder
	require.NoError(t, env.db.First(&r, id).Error)
	return r.Status
}

func TestReminderService_ScheduleReminder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	at := time.Now().Add(time.Hour)

	reminder, err := env.reminders.ScheduleReminder(ctx, env.user.ID, "Call the dentist", at)
	require.NoError(t, err)
	assert.NotZero(t, reminder.ID)
	assert.NotZero(t, reminder.TaskID)
	assert.Equal(t, models.ReminderPending, reminder.Status)

	task, err := env.tasks.Get(ctx, env.user.ID, reminder.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "Call the dentist", task.Description)
	require.NotNil(t, task.DueDate)
	assert.True(t, at.Equal(*task.DueDate))

	assert.True(t, env.scheduler.Has(scheduler.ReminderJobID(reminder.TaskID)))
}

func TestReminderService_ScheduleReminderValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reminders.ScheduleReminder(ctx, env.user.ID, " ", time.Now().Add(time.Hour))
	assert.True(t, utils.IsValidationError(err))

	_, err = env.reminders.ScheduleReminder(ctx, env.user.ID, "Too late", time.Now().Add(-time.Minute))
	assert.True(t, utils.IsValidationError(err))

	_, err = env.reminders.ScheduleReminder(ctx, env.user.ID, "No time", time.Time{})
	assert.True(t, utils.IsValidationError(err))

	var count int64
	env.db.Model(&models.Task{}).Count(&count)
	assert.Zero(t, count, "rejected reminders must not leave tasks behind")
	assert.Empty(t, env.scheduler.Pending())
}

func TestReminderService_Fires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reminder, err := env.reminders.ScheduleReminder(ctx, env.user.ID, "Stretch", time.Now().Add(300*time.Millisecond))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return env.notifier.count() == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		return reminderStatus(t, env, reminder.ID) == models.ReminderSent
	}, 5*time.Second, 20*time.Millisecond)

	var stored models.Reminder
	require.NoError(t, env.db.First(&stored, reminder.ID).Error)
	assert.NotNil(t, stored.FiredAt)
	assert.False(t, env.scheduler.Has(scheduler.ReminderJobID(reminder.TaskID)))

	activity, err := env.activity.Recent(ctx, env.user.ID, 10)
	require.NoError(t, err)
	var types []string
	for _, a := range activity {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, models.ActivityReminderFired)
	assert.Contains(t, types, models.ActivityReminderSet)
}

func TestReminderService_NotifierFailureStillMarksSent(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("push gateway down")

	reminder, err := env.reminders.ScheduleReminder(context.Background(), env.user.ID, "Drink water", time.Now().Add(200*time.Millisecond))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return reminderStatus(t, env, reminder.ID) == models.ReminderSent
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, env.notifier.count())
}

func TestReminderService_CompletedTaskDropsReminder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reminder, err := env.reminders.ScheduleReminder(ctx, env.user.ID, "Pay rent", time.Now().Add(time.Hour))
	require.NoError(t, err)

	// complete the task behind the service's back so the job is still registered
	require.NoError(t, env.db.Model(&models.Task{}).Where("id = ?", reminder.TaskID).
		Updates(map[string]interface{}{"completed": true, "completed_at": time.Now().UTC()}).Error)

	env.reminders.fire(reminder.ID)

	assert.Equal(t, models.ReminderCancelled, reminderStatus(t, env, reminder.ID))
	assert.Zero(t, env.notifier.count())
}

func TestReminderService_FireSkipsNonPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reminder, err := env.reminders.ScheduleReminder(ctx, env.user.ID, "Water plants", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = env.reminders.Cancel(ctx, env.user.ID, reminder.ID)
	require.NoError(t, err)

	env.reminders.fire(reminder.ID)
	assert.Zero(t, env.notifier.count())
	assert.Equal(t, models.ReminderCancelled, reminderStatus(t, env, reminder.ID))
}

func TestReminderService_Cancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	other := createTestUser(t, env.db, "intruder")

	reminder, err := env.reminders.ScheduleReminder(ctx, env.user.ID, "Renew passport", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = env.reminders.Cancel(ctx, other.ID, reminder.ID)
	assert.True(t, utils.IsNotFoundError(err))

	cancelled, err := env.reminders.Cancel(ctx, env.user.ID, reminder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderCancelled, cancelled.Status)
	assert.False(t, env.scheduler.Has(scheduler.ReminderJobID(reminder.TaskID)))

	_, err = env.reminders.Cancel(ctx, env.user.ID, reminder.ID)
	require.Error(t, err)
	assert.True(t, utils.IsConflictError(err))
	assert.Contains(t, err.Error(), "already cancelled")

	_, err = env.reminders.Cancel(ctx, env.user.ID, 31337)
	assert.True(t, utils.IsNotFoundError(err))
}

func TestReminderService_ScheduleForTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.tasks.Create(ctx, env.user.ID, CreateTaskInput{Description: "Finish report"})
	require.NoError(t, err)

	first, err := env.reminders.ScheduleForTask(ctx, env.user.ID, task.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Finish report", first.Description)

	second, err := env.reminders.ScheduleForTask(ctx, env.user.ID, task.ID, time.Now().Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, models.ReminderCancelled, reminderStatus(t, env, first.ID))
	assert.Equal(t, models.ReminderPending, reminderStatus(t, env, second.ID))

	pending := env.scheduler.Pending()
	require.Len(t, pending, 1)
	assert.True(t, second.RemindAt.Equal(pending[0].At))

	_, err = env.reminders.ScheduleForTask(ctx, env.user.ID, 999, time.Now().Add(time.Hour))
	assert.True(t, utils.IsNotFoundError(err))

	_, err = env.tasks.MarkDone(ctx, env.user.ID, task.ID)
	require.NoError(t, err)
	_, err = env.reminders.ScheduleForTask(ctx, env.user.ID, task.ID, time.Now().Add(time.Hour))
	assert.True(t, utils.IsConflictError(err))
}

func TestReminderService_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	later, err := env.reminders.ScheduleReminder(ctx, env.user.ID, "Later", time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	sooner, err := env.reminders.ScheduleReminder(ctx, env.user.ID, "Sooner", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = env.reminders.Cancel(ctx, env.user.ID, later.ID)
	require.NoError(t, err)

	all, err := env.reminders.List(ctx, env.user.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, sooner.ID, all[0].ID)

	pending, err := env.reminders.List(ctx, env.user.ID, models.ReminderPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Sooner", pending[0].Description)

	_, err = env.reminders.List(ctx, env.user.ID, "snoozed")
	assert.True(t, utils.IsValidationError(err))
}

func TestReminderService_Restore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	future := &models.Reminder{UserID: env.user.ID, Description: "Future", RemindAt: time.Now().Add(time.Hour), Status: models.ReminderPending}
	past := &models.Reminder{UserID: env.user.ID, Description: "Past", RemindAt: time.Now().Add(-time.Hour), Status: models.ReminderPending}
	sent := &models.Reminder{UserID: env.user.ID, Description: "Sent", RemindAt: time.Now().Add(time.Hour), Status: models.ReminderSent}
	for i, r := range []*models.Reminder{future, past, sent} {
		task := &models.Task{UserID: env.user.ID, Description: r.Description}
		require.NoError(t, env.db.Create(task).Error, "task %d", i)
		r.TaskID = task.ID
		require.NoError(t, env.db.Create(r).Error)
	}

	// a fresh scheduler stands in for a restarted process
	sched := scheduler.New(zerolog.Nop())
	sched.Start()
	defer sched.Stop()
	restarted := NewReminderService(env.db, sched, env.activity, zerolog.Nop(), WithNotifier(env.notifier))

	restored, missed, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, 1, missed)

	assert.True(t, sched.Has(scheduler.ReminderJobID(future.TaskID)))
	assert.False(t, sched.Has(scheduler.ReminderJobID(sent.TaskID)))
	assert.Equal(t, models.ReminderMissed, reminderStatus(t, env, past.ID))
	assert.Equal(t, models.ReminderSent, reminderStatus(t, env, sent.ID))
}

func TestReminderService_DeliversOnceAcrossProcesses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := &models.Task{UserID: env.user.ID, Description: "Standup"}
	require.NoError(t, env.db.Create(task).Error)
	reminder := &models.Reminder{UserID: env.user.ID, TaskID: task.ID, Description: "Standup", RemindAt: time.Now().Add(300 * time.Millisecond), Status: models.ReminderPending}
	require.NoError(t, env.db.Create(reminder).Error)

	// the HTTP server and the MCP server both restore from the same database
	var notifiers []*recordingNotifier
	for i := 0; i < 2; i++ {
		sched := scheduler.New(zerolog.Nop())
		sched.Start()
		t.Cleanup(func() { <-sched.Stop().Done() })

		n := &recordingNotifier{}
		notifiers = append(notifiers, n)
		svc := NewReminderService(env.db, sched, env.activity, zerolog.Nop(), WithNotifier(n))
		restored, _, err := svc.Restore(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, restored)
	}

	assert.Eventually(t, func() bool {
		return reminderStatus(t, env, reminder.ID) == models.ReminderSent
	}, 5*time.Second, 20*time.Millisecond)
	// give the slower process time to lose the claim
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, 1, notifiers[0].count()+notifiers[1].count())
}

func TestReminderService_FireTwiceDeliversOnce(t *testing.T) {
	env := newTestEnv(t)

	reminder, err := env.reminders.ScheduleReminder(context.Background(), env.user.ID, "Feed the cat", time.Now().Add(time.Hour))
	require.NoError(t, err)

	env.reminders.fire(reminder.ID)
	env.reminders.fire(reminder.ID)

	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, models.ReminderSent, reminderStatus(t, env, reminder.ID))
}

func TestReminderService_RefusedJobLeavesNoPendingRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// the scheduler's clock runs ahead, so it refuses a time the service accepted
	sched := scheduler.New(zerolog.Nop(), scheduler.WithClock(fixedClock(time.Now().Add(2*time.Hour))))
	svc := NewReminderService(env.db, sched, env.activity, zerolog.Nop(), WithNotifier(env.notifier))

	_, err := svc.ScheduleReminder(ctx, env.user.ID, "Book flights", time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))

	pending, err := svc.List(ctx, env.user.ID, models.ReminderPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, sched.Pending())
}
