package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type CreateScheduleInput struct {
	Title       string
	Description string
	StartTime   time.Time
	EndTime     *time.Time
}

// UpdateScheduleInput holds the fields to change; nil fields are left alone
type UpdateScheduleInput struct {
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
}

// ScheduleDoneResult is returned when a schedule is marked as completed
type ScheduleDoneResult struct {
	Schedule       *models.Schedule `json:"schedule"`
	TasksCompleted int64            `json:"tasks_completed"`
	Message        string           `json:"message"`
}

type ScheduleService struct {
	db       *gorm.DB
	tasks    *TaskService
	activity *ActivityService
	logger   zerolog.Logger
	now      func() time.Time
}

func NewScheduleService(db *gorm.DB, tasks *TaskService, activity *ActivityService, logger zerolog.Logger) *ScheduleService {
	return &ScheduleService{
		db:       db,
		tasks:    tasks,
		activity: activity,
		logger:   logger.With().Str("service", "schedules").Logger(),
		now:      time.Now,
	}
}

// Create stores a new schedule
func (s *ScheduleService) Create(ctx context.Context, userID uint, input CreateScheduleInput) (*models.Schedule, error) {
	var schedule *models.Schedule
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		schedule, err = s.createTx(tx, userID, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.activity.record(ctx, userID, models.ActivityScheduleCreated, map[string]interface{}{
		"schedule_id": schedule.ID,
		"title":       schedule.Title,
	})
	return schedule, nil
}

func (s *ScheduleService) createTx(tx *gorm.DB, userID uint, input CreateScheduleInput) (*models.Schedule, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, utils.RequiredFieldError("title")
	}
	if input.StartTime.IsZero() {
		return nil, utils.RequiredFieldError("start_time")
	}
	if input.EndTime != nil && !input.EndTime.After(input.StartTime) {
		return nil, utils.InvalidFieldError("end_time", "must be after start_time")
	}

	schedule := &models.Schedule{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
	}
	if err := tx.Create(schedule).Error; err != nil {
		return nil, utils.WrapDatabaseError("create schedule", err)
	}

	s.logger.Debug().Uint("user_id", userID).Uint("schedule_id", schedule.ID).Msg("Schedule created")
	return schedule, nil
}

// List returns the user's schedules ordered by start time
func (s *ScheduleService) List(ctx context.Context, userID uint) ([]models.Schedule, error) {
	var schedules []models.Schedule
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("start_time ASC").Order("id ASC").Find(&schedules).Error
	if err != nil {
		return nil, utils.WrapDatabaseError("list schedules", err)
	}
	return schedules, nil
}

// ListForDay returns schedules starting on the calendar day of day, in
// day's location
func (s *ScheduleService) ListForDay(ctx context.Context, userID uint, day time.Time) ([]models.Schedule, error) {
	start := startOfDay(day)
	end := start.AddDate(0, 0, 1)

	var schedules []models.Schedule
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND start_time >= ? AND start_time < ?", userID, start.UTC(), end.UTC()).
		Order("start_time ASC").Order("id ASC").Find(&schedules).Error
	if err != nil {
		return nil, utils.WrapDatabaseError("list schedules for day", err)
	}
	return schedules, nil
}

// Recent returns the user's n most recently created schedules
func (s *ScheduleService) Recent(ctx context.Context, userID uint, n int) ([]models.Schedule, error) {
	var schedules []models.Schedule
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(n).Find(&schedules).Error
	if err != nil {
		return nil, utils.WrapDatabaseError("list recent schedules", err)
	}
	return schedules, nil
}

func (s *ScheduleService) Get(ctx context.Context, userID, id uint) (*models.Schedule, error) {
	return s.getTx(s.db.WithContext(ctx), userID, id)
}

func (s *ScheduleService) getTx(tx *gorm.DB, userID, id uint) (*models.Schedule, error) {
	var schedule models.Schedule
	err := tx.Where("id = ? AND user_id = ?", id, userID).First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.WrapNotFoundError("schedule", strconv.FormatUint(uint64(id), 10))
		}
		return nil, utils.WrapDatabaseError("get schedule", err)
	}
	return &schedule, nil
}

// Update changes the given fields of a schedule
func (s *ScheduleService) Update(ctx context.Context, userID, id uint, input UpdateScheduleInput) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, utils.InvalidFieldError("title", "cannot be empty")
		}
		schedule.Title = title
	}
	if input.Description != nil {
		schedule.Description = strings.TrimSpace(*input.Description)
	}
	if input.StartTime != nil {
		schedule.StartTime = *input.StartTime
	}
	if input.EndTime != nil {
		schedule.EndTime = input.EndTime
	}
	if schedule.EndTime != nil && !schedule.EndTime.After(schedule.StartTime) {
		return nil, utils.InvalidFieldError("end_time", "must be after start_time")
	}

	if err := s.db.WithContext(ctx).Save(schedule).Error; err != nil {
		return nil, utils.WrapDatabaseError("update schedule", err)
	}
	return schedule, nil
}

// RescheduleByTitle moves the earliest created schedule whose title matches
// (case-insensitively) to newStart. It reports whether a schedule matched.
func (s *ScheduleService) RescheduleByTitle(ctx context.Context, userID uint, title string, newStart time.Time) (bool, error) {
	var found bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		found, err = s.rescheduleByTitleTx(tx, userID, title, newStart)
		return err
	})
	return found, err
}

func (s *ScheduleService) rescheduleByTitleTx(tx *gorm.DB, userID uint, title string, newStart time.Time) (bool, error) {
	var schedule models.Schedule
	err := tx.Where("user_id = ? AND LOWER(title) = LOWER(?)", userID, strings.TrimSpace(title)).
		Order("created_at ASC").Order("id ASC").First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, utils.WrapDatabaseError("find schedule by title", err)
	}

	if err := tx.Model(&schedule).Update("start_time", newStart.UTC()).Error; err != nil {
		return false, utils.WrapDatabaseError("reschedule", err)
	}
	return true, nil
}

// MarkDone completes a schedule together with the open tasks that mention
// its title
func (s *ScheduleService) MarkDone(ctx context.Context, userID, id uint) (*ScheduleDoneResult, error) {
	result := &ScheduleDoneResult{}
	var completed []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := s.getTx(tx, userID, id)
		if err != nil {
			return err
		}

		if err := tx.Model(schedule).Update("completed", true).Error; err != nil {
			return utils.WrapDatabaseError("complete schedule", err)
		}
		schedule.Completed = true

		completed, err = s.tasks.CompleteMatching(tx, userID, schedule.Title, s.now().UTC())
		if err != nil {
			return err
		}

		result.Schedule = schedule
		result.TasksCompleted = int64(len(completed))
		result.Message = fmt.Sprintf("Schedule \"%s\" marked as completed.", schedule.Title)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.tasks.CancelReminders(ctx, userID, completed)

	s.activity.record(ctx, userID, models.ActivityScheduleDone, map[string]interface{}{
		"schedule_id":     id,
		"tasks_completed": result.TasksCompleted,
	})
	return result, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
