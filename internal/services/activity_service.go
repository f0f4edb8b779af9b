package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type ActivityService struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewActivityService(db *gorm.DB, logger zerolog.Logger) *ActivityService {
	return &ActivityService{
		db:     db,
		logger: logger.With().Str("service", "activity").Logger(),
	}
}

// ActivityEntry is an activity row with a human readable description
type ActivityEntry struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details,omitempty"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// LogActivity logs user activity
func (s *ActivityService) LogActivity(ctx context.Context, userID uint, activityType string, details map[string]interface{}, ipAddress, userAgent string) error {
	activity := &models.ActivityLog{
		UserID:    userID,
		Type:      activityType,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	if err := activity.SetDetails(details); err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal activity details")
		return err
	}

	if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
		s.logger.Error().Err(err).Str("type", activityType).Msg("Failed to log activity")
		return err
	}

	return nil
}

// record logs an activity; failures are already logged by LogActivity
func (s *ActivityService) record(ctx context.Context, userID uint, activityType string, details map[string]interface{}) {
	if s == nil {
		return
	}
	_ = s.LogActivity(ctx, userID, activityType, details, "", "")
}

// Recent returns the user's latest activity, newest first
func (s *ActivityService) Recent(ctx context.Context, userID uint, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	var activities []models.ActivityLog
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(limit).Find(&activities).Error; err != nil {
		return nil, err
	}

	results := make([]ActivityEntry, len(activities))
	for i, activity := range activities {
		details, err := activity.DetailsMap()
		if err != nil {
			s.logger.Debug().Err(err).Uint("activity_id", activity.ID).Msg("Unreadable activity details")
		}
		results[i] = ActivityEntry{
			Type:        activity.Type,
			Description: describeActivity(activity.Type, details),
			IPAddress:   activity.IPAddress,
			Timestamp:   activity.CreatedAt,
		}
		if len(details) > 0 {
			results[i].Details = details
		}
	}

	return results, nil
}

func describeActivity(activityType string, details map[string]interface{}) string {
	str := func(key string) (string, bool) {
		v, ok := details[key].(string)
		return v, ok && v != ""
	}

	switch activityType {
	case models.ActivityLogin:
		return "Logged in"
	case models.ActivityGuestLogin:
		return "Started a guest session"
	case models.ActivityAPIKeyCreated:
		if name, ok := str("name"); ok {
			return fmt.Sprintf("Created API key: %s", name)
		}
		return "Created new API key"
	case models.ActivityAPIKeyDeleted:
		return "Deleted API key"
	case models.ActivityTaskCreated:
		if desc, ok := str("description"); ok {
			return fmt.Sprintf("Added task: %s", truncate(desc, 50))
		}
		return "Added a task"
	case models.ActivityTaskCompleted:
		return "Completed a task"
	case models.ActivityScheduleCreated:
		if title, ok := str("title"); ok {
			return fmt.Sprintf("Scheduled %s", title)
		}
		return "Created a schedule"
	case models.ActivityScheduleDone:
		return "Completed a schedule"
	case models.ActivityReminderSet:
		return "Set a reminder"
	case models.ActivityReminderFired:
		if desc, ok := str("description"); ok {
			return fmt.Sprintf("Reminder sent: %s", truncate(desc, 50))
		}
		return "Reminder sent"
	case models.ActivityReminderCanceled:
		return "Cancelled a reminder"
	case models.ActivityInputProcessed:
		return "Talked to the assistant"
	default:
		return fmt.Sprintf("Performed %s action", activityType)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
