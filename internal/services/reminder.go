package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/scheduler"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Notifier delivers a reminder to its user
type Notifier interface {
	Notify(ctx context.Context, reminder models.Reminder) error
}

// LogNotifier delivers reminders by writing them to the log
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, reminder models.Reminder) error {
	n.logger.Info().
		Uint("user_id", reminder.UserID).
		Uint("task_id", reminder.TaskID).
		Time("remind_at", reminder.RemindAt).
		Msgf("Reminder: %s", reminder.Description)
	return nil
}

// ReminderService persists reminders and keeps the scheduler in step with
// the pending rows
type ReminderService struct {
	db        *gorm.DB
	scheduler *scheduler.Scheduler
	notifier  Notifier
	activity  *ActivityService
	logger    zerolog.Logger
	now       func() time.Time
	fireTTL   time.Duration
}

// ReminderOption configures a ReminderService
type ReminderOption func(*ReminderService)

// WithNotifier replaces the default log notifier
func WithNotifier(n Notifier) ReminderOption {
	return func(s *ReminderService) {
		s.notifier = n
	}
}

// WithReminderClock overrides the clock used to validate reminder times
func WithReminderClock(now func() time.Time) ReminderOption {
	return func(s *ReminderService) {
		s.now = now
	}
}

func NewReminderService(db *gorm.DB, sched *scheduler.Scheduler, activity *ActivityService, logger zerolog.Logger, opts ...ReminderOption) *ReminderService {
	logger = logger.With().Str("service", "reminders").Logger()
	s := &ReminderService{
		db:        db,
		scheduler: sched,
		notifier:  NewLogNotifier(logger),
		activity:  activity,
		logger:    logger,
		now:       time.Now,
		fireTTL:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleReminder creates a task for description due at at, and a pending
// reminder that fires at the same time
func (s *ReminderService) ScheduleReminder(ctx context.Context, userID uint, description string, at time.Time) (*models.Reminder, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, utils.RequiredFieldError("description")
	}
	if len(description) > models.MaxDescriptionLength {
		return nil, utils.InvalidFieldError("description", "is too long")
	}
	if err := s.checkTime(at); err != nil {
		return nil, err
	}

	reminder := &models.Reminder{
		UserID:      userID,
		Description: description,
		RemindAt:    at,
		Status:      models.ReminderPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		due := at
		task := &models.Task{UserID: userID, Description: description, DueDate: &due}
		if err := tx.Create(task).Error; err != nil {
			return utils.WrapDatabaseError("create reminder task", err)
		}
		// the insert has assigned task.ID, so the job key is stable
		reminder.TaskID = task.ID
		if err := tx.Create(reminder).Error; err != nil {
			return utils.WrapDatabaseError("create reminder", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.arm(ctx, reminder); err != nil {
		return nil, err
	}

	s.afterScheduled(ctx, reminder)
	return reminder, nil
}

// ScheduleForTask adds a reminder to an existing task. A pending reminder for
// the same task is cancelled and replaced.
func (s *ReminderService) ScheduleForTask(ctx context.Context, userID, taskID uint, at time.Time) (*models.Reminder, error) {
	if err := s.checkTime(at); err != nil {
		return nil, err
	}

	var reminder *models.Reminder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ? AND user_id = ?", taskID, userID).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.WrapNotFoundError("task", strconv.FormatUint(uint64(taskID), 10))
			}
			return utils.WrapDatabaseError("get task", err)
		}
		if task.Completed {
			return utils.WrapStateError("task", "is already completed")
		}

		err := tx.Model(&models.Reminder{}).
			Where("task_id = ? AND user_id = ? AND status = ?", taskID, userID, models.ReminderPending).
			Update("status", models.ReminderCancelled).Error
		if err != nil {
			return utils.WrapDatabaseError("replace reminder", err)
		}

		reminder = &models.Reminder{
			UserID:      userID,
			TaskID:      task.ID,
			Description: task.Description,
			RemindAt:    at,
			Status:      models.ReminderPending,
		}
		if err := tx.Create(reminder).Error; err != nil {
			return utils.WrapDatabaseError("create reminder", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// the job id is per task, so this also replaces the old reminder's job
	if err := s.arm(ctx, reminder); err != nil {
		return nil, err
	}

	s.afterScheduled(ctx, reminder)
	return reminder, nil
}

// arm registers the job for a committed reminder. If the scheduler refuses
// the time, the row is marked missed so it never shows as pending.
func (s *ReminderService) arm(ctx context.Context, reminder *models.Reminder) error {
	err := s.register(reminder.ID, reminder.TaskID, reminder.RemindAt)
	if err == nil {
		return nil
	}
	s.transition(ctx, reminder, models.ReminderMissed, nil)
	if errors.Is(err, scheduler.ErrInPast) {
		return utils.InvalidFieldError("time", "must be in the future")
	}
	return err
}

func (s *ReminderService) afterScheduled(ctx context.Context, reminder *models.Reminder) {
	s.logger.Info().
		Uint("reminder_id", reminder.ID).
		Uint("task_id", reminder.TaskID).
		Time("remind_at", reminder.RemindAt).
		Msg("Reminder scheduled")
	s.activity.record(ctx, reminder.UserID, models.ActivityReminderSet, map[string]interface{}{
		"reminder_id": reminder.ID,
		"task_id":     reminder.TaskID,
		"remind_at":   reminder.RemindAt.UTC().Format(time.RFC3339),
	})
}

func (s *ReminderService) checkTime(at time.Time) error {
	if at.IsZero() {
		return utils.RequiredFieldError("time")
	}
	if !at.After(s.now()) {
		return utils.InvalidFieldError("time", "must be in the future")
	}
	return nil
}

func (s *ReminderService) register(reminderID, taskID uint, at time.Time) error {
	return s.scheduler.ScheduleAt(scheduler.ReminderJobID(taskID), at, func() {
		s.fire(reminderID)
	})
}

// fire delivers a due reminder. It runs on a scheduler goroutine. Several
// processes may arm the same reminder, so the row is claimed before the
// notifier runs and only the claiming process delivers it.
func (s *ReminderService) fire(reminderID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fireTTL)
	defer cancel()

	log := s.logger.With().Uint("reminder_id", reminderID).Logger()

	var reminder models.Reminder
	if err := s.db.WithContext(ctx).Preload("Task").First(&reminder, reminderID).Error; err != nil {
		log.Error().Err(err).Msg("Failed to load due reminder")
		return
	}
	if !reminder.IsPending() {
		log.Debug().Str("status", reminder.Status).Msg("Reminder no longer pending, skipping")
		return
	}
	if reminder.Task != nil && reminder.Task.Completed {
		if s.transition(ctx, &reminder, models.ReminderCancelled, nil) {
			log.Info().Msg("Task already completed, reminder dropped")
		}
		return
	}

	firedAt := s.now().UTC()
	if !s.transition(ctx, &reminder, models.ReminderSent, &firedAt) {
		log.Debug().Msg("Reminder claimed elsewhere, skipping")
		return
	}

	log.Info().Msgf("Reminder: %s", reminder.Description)
	if err := s.notifier.Notify(ctx, reminder); err != nil {
		// one-shot reminders are not retried
		log.Error().Err(err).Msg("Failed to deliver reminder")
	}

	s.activity.record(ctx, reminder.UserID, models.ActivityReminderFired, map[string]interface{}{
		"reminder_id": reminder.ID,
		"task_id":     reminder.TaskID,
		"description": reminder.Description,
	})
}

// transition moves a pending reminder to status and reports whether this
// call made the change
func (s *ReminderService) transition(ctx context.Context, reminder *models.Reminder, status string, firedAt *time.Time) bool {
	updates := map[string]interface{}{"status": status}
	if firedAt != nil {
		updates["fired_at"] = *firedAt
	}
	result := s.db.WithContext(ctx).Model(&models.Reminder{}).
		Where("id = ? AND status = ?", reminder.ID, models.ReminderPending).
		Updates(updates)
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Uint("reminder_id", reminder.ID).Str("status", status).Msg("Failed to update reminder status")
		return false
	}
	if result.RowsAffected == 0 {
		return false
	}
	reminder.Status = status
	reminder.FiredAt = firedAt
	return true
}

// Cancel cancels a pending reminder. Reminders in any other state are a
// conflict.
func (s *ReminderService) Cancel(ctx context.Context, userID, reminderID uint) (*models.Reminder, error) {
	var reminder models.Reminder
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", reminderID, userID).First(&reminder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.WrapNotFoundError("reminder", strconv.FormatUint(uint64(reminderID), 10))
		}
		return nil, utils.WrapDatabaseError("get reminder", err)
	}

	if !reminder.IsPending() {
		return nil, utils.WrapStateError("reminder", "is already "+reminder.Status)
	}

	result := s.db.WithContext(ctx).Model(&models.Reminder{}).
		Where("id = ? AND status = ?", reminder.ID, models.ReminderPending).
		Update("status", models.ReminderCancelled)
	if result.Error != nil {
		return nil, utils.WrapDatabaseError("cancel reminder", result.Error)
	}
	if result.RowsAffected == 0 {
		// fired between the read and the update
		return nil, utils.WrapStateError("reminder", "is no longer pending")
	}
	reminder.Status = models.ReminderCancelled

	s.scheduler.Cancel(scheduler.ReminderJobID(reminder.TaskID))
	s.activity.record(ctx, userID, models.ActivityReminderCanceled, map[string]interface{}{
		"reminder_id": reminder.ID,
		"task_id":     reminder.TaskID,
	})

	return &reminder, nil
}

// CancelForTask cancels the task's pending reminders and returns how many
// were cancelled
func (s *ReminderService) CancelForTask(ctx context.Context, userID, taskID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Reminder{}).
		Where("task_id = ? AND user_id = ? AND status = ?", taskID, userID, models.ReminderPending).
		Update("status", models.ReminderCancelled)
	if result.Error != nil {
		return 0, utils.WrapDatabaseError("cancel task reminders", result.Error)
	}

	if s.scheduler.Cancel(scheduler.ReminderJobID(taskID)) {
		s.logger.Debug().Uint("task_id", taskID).Msg("Reminder job removed for completed task")
	}
	return result.RowsAffected, nil
}

// List returns the user's reminders ordered by time, optionally filtered by
// status
func (s *ReminderService) List(ctx context.Context, userID uint, status string) ([]models.Reminder, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		if !models.IsValidReminderStatus(status) {
			return nil, utils.InvalidFieldError("status", "must be one of pending, sent, cancelled, missed")
		}
		query = query.Where("status = ?", status)
	}

	var reminders []models.Reminder
	if err := query.Order("remind_at ASC").Order("id ASC").Find(&reminders).Error; err != nil {
		return nil, utils.WrapDatabaseError("list reminders", err)
	}
	return reminders, nil
}

// Restore re-registers pending reminders after a restart. Reminders whose
// time passed while the process was down are marked missed.
func (s *ReminderService) Restore(ctx context.Context) (restored, missed int, err error) {
	var pending []models.Reminder
	if err := s.db.WithContext(ctx).Where("status = ?", models.ReminderPending).
		Order("remind_at ASC").Find(&pending).Error; err != nil {
		return 0, 0, utils.WrapDatabaseError("load pending reminders", err)
	}

	now := s.now()
	for i := range pending {
		r := &pending[i]
		if r.RemindAt.After(now) {
			regErr := s.register(r.ID, r.TaskID, r.RemindAt)
			if regErr == nil {
				restored++
				continue
			}
			if !errors.Is(regErr, scheduler.ErrInPast) {
				return restored, missed, regErr
			}
		}
		if s.transition(ctx, r, models.ReminderMissed, nil) {
			missed++
		}
	}

	s.logger.Info().Int("restored", restored).Int("missed", missed).Msg("Pending reminders restored")
	return restored, missed, nil
}
