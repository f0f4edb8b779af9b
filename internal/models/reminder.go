package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Reminder statuses
const (
	ReminderPending   = "pending"
	ReminderSent      = "sent"
	ReminderCancelled = "cancelled"
	ReminderMissed    = "missed"
)

// Reminder is a one-shot notification tied to a task
type Reminder struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	TaskID      uint       `gorm:"not null;index" json:"task_id"`
	Description string     `gorm:"type:text;not null" json:"description"`
	RemindAt    time.Time  `gorm:"not null;index" json:"remind_at"`
	Status      string     `gorm:"size:16;not null;default:'pending';index" json:"status"`
	FiredAt     *time.Time `json:"fired_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Task *Task `gorm:"foreignKey:TaskID" json:"-" swaggerignore:"true"`
	User *User `gorm:"foreignKey:UserID" json:"-" swaggerignore:"true"`
}

func (Reminder) TableName() string {
	return "reminders"
}

func (r *Reminder) Validate() error {
	if r.UserID == 0 || r.TaskID == 0 {
		return errors.New("reminder must reference a user and a task")
	}
	if r.Description == "" {
		return errors.New("description cannot be empty")
	}
	if r.RemindAt.IsZero() {
		return errors.New("remind time is required")
	}
	if !IsValidReminderStatus(r.Status) {
		return fmt.Errorf("invalid reminder status: %s", r.Status)
	}
	return nil
}

func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = ReminderPending
	}
	return r.Validate()
}

func (r *Reminder) BeforeSave(tx *gorm.DB) error {
	r.RemindAt = r.RemindAt.UTC()
	r.FiredAt = utcPtr(r.FiredAt)
	return nil
}

// IsPending reports whether the reminder is still waiting to fire
func (r *Reminder) IsPending() bool {
	return r.Status == ReminderPending
}

func IsValidReminderStatus(s string) bool {
	switch s {
	case ReminderPending, ReminderSent, ReminderCancelled, ReminderMissed:
		return true
	default:
		return false
	}
}
