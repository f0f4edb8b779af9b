package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ksred/plansmart/internal/database"
	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Demo account credentials
const (
	DemoUsername = "Moyo"
	DemoPassword = "Demo@123"
)

type demoTask struct {
	description string
	due         time.Duration
	completed   bool
}

var demoTasks = []demoTask{
	{"Complete project report", 24 * time.Hour, false},
	{"Review code pull requests", 2 * time.Hour, false},
	{"Prepare presentation for team meeting", 48 * time.Hour, false},
	{"Update documentation", 72 * time.Hour, false},
	{"Schedule 1-on-1 with manager", 5 * time.Hour, false},
	{"Fix bug in authentication module", 3 * time.Hour, false},
	{"Send weekly status update", 24 * time.Hour, true},
	{"Research new AI frameworks", 120 * time.Hour, false},
}

// demo schedules, offset from 09:00 today
type demoSchedule struct {
	title       string
	description string
	start, end  time.Duration
}

var demoSchedules = []demoSchedule{
	{"Team Standup", "Daily team meeting", 1 * time.Hour, 90 * time.Minute},
	{"Code Review Session", "Review pull requests and provide feedback", 3 * time.Hour, 4 * time.Hour},
	{"Lunch Break", "Lunch time", 5 * time.Hour, 6 * time.Hour},
	{"Project Planning Meeting", "Discuss upcoming project requirements", 7 * time.Hour, 510 * time.Minute},
	{"Client Call", "Monthly client check-in", 26 * time.Hour, 27 * time.Hour},
	{"Sprint Planning", "Plan next sprint tasks", 57 * time.Hour, 59 * time.Hour},
	{"One-on-One with Manager", "Monthly 1:1 sync", 86 * time.Hour, 87 * time.Hour},
	{"Training Session: Advanced Go", "Professional development training", 106 * time.Hour, 6390 * time.Minute},
}

// SeedResult summarises a demo seed
type SeedResult struct {
	User      *models.User
	Created   bool
	Tasks     int
	Schedules int
}

// SeedDemo creates the demo user, or clears an existing one's tasks,
// schedules and reminders, and fills it with sample data around now
func SeedDemo(ctx context.Context, db *database.Database, now time.Time) (*SeedResult, error) {
	result := &SeedResult{}

	err := db.WithTransaction(ctx, func(tx *gorm.DB) error {
		var user models.User
		err := tx.Where("username = ?", DemoUsername).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			user = models.User{Username: DemoUsername, Password: string(hashed)}
			if err := tx.Create(&user).Error; err != nil {
				return utils.WrapDatabaseError("create demo user", err)
			}
			result.Created = true
		case err != nil:
			return utils.WrapDatabaseError("find demo user", err)
		default:
			for _, model := range []interface{}{&models.Reminder{}, &models.Task{}, &models.Schedule{}} {
				if err := tx.Where("user_id = ?", user.ID).Delete(model).Error; err != nil {
					return utils.WrapDatabaseError("clear demo data", err)
				}
			}
		}
		result.User = &user

		for _, d := range demoTasks {
			due := now.Add(d.due)
			task := &models.Task{UserID: user.ID, Description: d.description, DueDate: &due}
			if d.completed {
				task.MarkCompleted(now)
			}
			if err := tx.Create(task).Error; err != nil {
				return utils.WrapDatabaseError("create demo task", err)
			}
			result.Tasks++
		}

		y, m, day := now.Date()
		nine := time.Date(y, m, day, 9, 0, 0, 0, now.Location())
		for _, d := range demoSchedules {
			end := nine.Add(d.end)
			schedule := &models.Schedule{
				UserID:      user.ID,
				Title:       d.title,
				Description: d.description,
				StartTime:   nine.Add(d.start),
				EndTime:     &end,
			}
			if err := tx.Create(schedule).Error; err != nil {
				return utils.WrapDatabaseError("create demo schedule", err)
			}
			result.Schedules++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
