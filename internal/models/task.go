package models

import (
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// MaxDescriptionLength bounds task and reminder descriptions
const MaxDescriptionLength = 500

// Task is a to-do item owned by a user
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	Description string     `gorm:"type:text;not null" json:"description"`
	DueDate     *time.Time `gorm:"index" json:"due_date"`
	Completed   bool       `gorm:"not null;default:false;index" json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Stored as a Postgres array literal in a text column so sqlite works too
	Tags      pq.StringArray `gorm:"type:text" json:"tags" swaggertype:"array,string"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-" swaggerignore:"true"`
}

func (Task) TableName() string {
	return "tasks"
}

// Validate checks the fields every stored task must have
func (t *Task) Validate() error {
	if t.UserID == 0 {
		return errors.New("task must belong to a user")
	}
	if strings.TrimSpace(t.Description) == "" {
		return errors.New("description cannot be empty")
	}
	if len(t.Description) > MaxDescriptionLength {
		return errors.New("description is too long")
	}
	return nil
}

// BeforeCreate runs validation before saving a new task
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	return t.Validate()
}

// BeforeSave stores times in UTC so range queries compare correctly on sqlite
func (t *Task) BeforeSave(tx *gorm.DB) error {
	t.DueDate = utcPtr(t.DueDate)
	t.CompletedAt = utcPtr(t.CompletedAt)
	return nil
}

// MarkCompleted flips the task to done, keeping the first completion time
func (t *Task) MarkCompleted(at time.Time) {
	t.Completed = true
	if t.CompletedAt == nil {
		t.CompletedAt = &at
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
