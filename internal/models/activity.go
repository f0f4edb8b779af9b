package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ActivityLog represents user activity tracking
type ActivityLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Type      string         `gorm:"size:64;not null;index" json:"type"`
	Details   string         `gorm:"type:text" json:"details,omitempty" swaggertype:"object"`
	IPAddress string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent string         `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"timestamp"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Activity type constants
const (
	ActivityLogin            = "login"
	ActivityGuestLogin       = "guest_login"
	ActivityAPIKeyCreated    = "api_key_created"
	ActivityAPIKeyDeleted    = "api_key_deleted"
	ActivityTaskCreated      = "task_created"
	ActivityTaskCompleted    = "task_completed"
	ActivityScheduleCreated  = "schedule_created"
	ActivityScheduleDone     = "schedule_completed"
	ActivityReminderSet      = "reminder_scheduled"
	ActivityReminderFired    = "reminder_fired"
	ActivityReminderCanceled = "reminder_cancelled"
	ActivityInputProcessed   = "input_processed"
)

// SetDetails stores details as JSON text
func (a *ActivityLog) SetDetails(details map[string]interface{}) error {
	if len(details) == 0 {
		a.Details = ""
		return nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return err
	}
	a.Details = string(data)
	return nil
}

// DetailsMap decodes the stored details
func (a *ActivityLog) DetailsMap() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if a.Details == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(a.Details), &out)
	return out, err
}
