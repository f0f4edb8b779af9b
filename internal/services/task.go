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
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// CreateTaskInput describes a new task. When Schedule is set the task is
// labelled with the schedule it belongs to.
type CreateTaskInput struct {
	Description string
	Schedule    string
	DueDate     *time.Time
	Tags        []string
}

// TaskService handles task-related business logic. Every call is scoped to
// the given user.
type TaskService struct {
	db        *gorm.DB
	reminders *ReminderService
	activity  *ActivityService
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTaskService creates a new TaskService. reminders may be nil, in which
// case completing a task leaves its reminder to be skipped when it fires.
func NewTaskService(db *gorm.DB, reminders *ReminderService, activity *ActivityService, logger zerolog.Logger) *TaskService {
	return &TaskService{
		db:        db,
		reminders: reminders,
		activity:  activity,
		logger:    logger.With().Str("service", "tasks").Logger(),
		now:       time.Now,
	}
}

// Create stores a new task
func (s *TaskService) Create(ctx context.Context, userID uint, input CreateTaskInput) (*models.Task, error) {
	var task *models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = s.createTx(tx, userID, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.activity.record(ctx, userID, models.ActivityTaskCreated, map[string]interface{}{
		"task_id":     task.ID,
		"description": task.Description,
	})
	return task, nil
}

func (s *TaskService) createTx(tx *gorm.DB, userID uint, input CreateTaskInput) (*models.Task, error) {
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, utils.RequiredFieldError("description")
	}
	if schedule := strings.TrimSpace(input.Schedule); schedule != "" {
		description = fmt.Sprintf("%s (Schedule: %s)", description, schedule)
	}
	if len(description) > models.MaxDescriptionLength {
		return nil, utils.InvalidFieldError("description", fmt.Sprintf("must be at most %d characters", models.MaxDescriptionLength))
	}

	task := &models.Task{
		UserID:      userID,
		Description: description,
		DueDate:     input.DueDate,
		Tags:        pq.StringArray(normalizeTags(input.Tags)),
	}
	if err := tx.Create(task).Error; err != nil {
		return nil, utils.WrapDatabaseError("create task", err)
	}

	s.logger.Debug().Uint("user_id", userID).Uint("task_id", task.ID).Msg("Task created")
	return task, nil
}

// List returns the user's tasks, optionally filtered by completion
func (s *TaskService) List(ctx context.Context, userID uint, completed *bool) ([]models.Task, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if completed != nil {
		query = query.Where("completed = ?", *completed)
	}

	var tasks []models.Task
	if err := query.Order("created_at ASC").Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, utils.WrapDatabaseError("list tasks", err)
	}
	return tasks, nil
}

// Get returns one of the user's tasks
func (s *TaskService) Get(ctx context.Context, userID, id uint) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.WrapNotFoundError("task", strconv.FormatUint(uint64(id), 10))
		}
		return nil, utils.WrapDatabaseError("get task", err)
	}
	return &task, nil
}

// MarkDone completes a task and cancels its pending reminder
func (s *TaskService) MarkDone(ctx context.Context, userID, id uint) (*models.Task, error) {
	task, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if !task.Completed {
		task.MarkCompleted(s.now().UTC())
		err := s.db.WithContext(ctx).Model(task).Updates(map[string]interface{}{
			"completed":    true,
			"completed_at": *task.CompletedAt,
		}).Error
		if err != nil {
			return nil, utils.WrapDatabaseError("complete task", err)
		}
		s.activity.record(ctx, userID, models.ActivityTaskCompleted, map[string]interface{}{"task_id": task.ID})
	}

	s.CancelReminders(ctx, userID, []uint{task.ID})
	return task, nil
}

// CompleteMatching marks the user's open tasks whose description contains
// title as done and returns their ids. It runs inside tx, so pending
// reminders are left for CancelReminders once the caller commits.
func (s *TaskService) CompleteMatching(tx *gorm.DB, userID uint, title string, at time.Time) ([]uint, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}

	var ids []uint
	err := tx.Model(&models.Task{}).
		Where("user_id = ? AND completed = ?", userID, false).
		Where(`LOWER(description) LIKE LOWER(?) ESCAPE '\'`, "%"+escapeLike(title)+"%").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, utils.WrapDatabaseError("find related tasks", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = tx.Model(&models.Task{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"completed":    true,
		"completed_at": at,
	}).Error
	if err != nil {
		return nil, utils.WrapDatabaseError("complete related tasks", err)
	}
	return ids, nil
}

// CancelReminders drops the pending reminders of completed tasks
func (s *TaskService) CancelReminders(ctx context.Context, userID uint, taskIDs []uint) {
	if s.reminders == nil {
		return
	}
	for _, id := range taskIDs {
		if _, err := s.reminders.CancelForTask(ctx, userID, id); err != nil {
			s.logger.Warn().Err(err).Uint("task_id", id).Msg("Failed to cancel reminder for completed task")
		}
	}
}

// CountCompletedBetween counts tasks completed in [from, to)
func (s *TaskService) CountCompletedBetween(ctx context.Context, userID uint, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("user_id = ? AND completed = ?", userID, true).
		Where("completed_at >= ? AND completed_at < ?", from.UTC(), to.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, utils.WrapDatabaseError("count completed tasks", err)
	}
	return count, nil
}

// Recent returns the user's n most recently created tasks
func (s *TaskService) Recent(ctx context.Context, userID uint, n int) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(n).Find(&tasks).Error
	if err != nil {
		return nil, utils.WrapDatabaseError("list recent tasks", err)
	}
	return tasks, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// escapeLike escapes LIKE wildcards in user supplied text
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
