package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Schedule is a calendar event owned by a user
type Schedule struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	StartTime   time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-" swaggerignore:"true"`
}

func (Schedule) TableName() string {
	return "schedules"
}

func (s *Schedule) Validate() error {
	if s.UserID == 0 {
		return errors.New("schedule must belong to a user")
	}
	if strings.TrimSpace(s.Title) == "" {
		return errors.New("title cannot be empty")
	}
	if s.StartTime.IsZero() {
		return errors.New("start time is required")
	}
	if s.EndTime != nil && !s.EndTime.After(s.StartTime) {
		return errors.New("end time must be after start time")
	}
	return nil
}

func (s *Schedule) BeforeCreate(tx *gorm.DB) error {
	return s.Validate()
}

func (s *Schedule) BeforeSave(tx *gorm.DB) error {
	s.StartTime = s.StartTime.UTC()
	s.EndTime = utcPtr(s.EndTime)
	return nil
}

// OnDay reports whether the schedule starts on the calendar day of day,
// evaluated in day's location
func (s *Schedule) OnDay(day time.Time) bool {
	start := s.StartTime.In(day.Location())
	y1, m1, d1 := start.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
