package models

import (
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
		errMsg  string
	}{
		{
			name:    "Valid task",
			task:    Task{UserID: 1, Description: "Complete project report"},
			wantErr: false,
		},
		{
			name:    "Missing owner",
			task:    Task{Description: "Orphan"},
			wantErr: true,
			errMsg:  "task must belong to a user",
		},
		{
			name:    "Blank description",
			task:    Task{UserID: 1, Description: "   "},
			wantErr: true,
			errMsg:  "description cannot be empty",
		},
		{
			name:    "Description too long",
			task:    Task{UserID: 1, Description: strings.Repeat("x", MaxDescriptionLength+1)},
			wantErr: true,
			errMsg:  "description is too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTask_MarkCompleted(t *testing.T) {
	first := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	task := Task{UserID: 1, Description: "Send weekly status update"}

	task.MarkCompleted(first)
	task.MarkCompleted(first.Add(time.Hour))

	assert.True(t, task.Completed)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, first, *task.CompletedAt)
}

func TestTask_TagsValue(t *testing.T) {
	task := Task{Tags: pq.StringArray{"work", "urgent"}}

	v, err := task.Tags.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"work","urgent"}`, v)

	var scanned pq.StringArray
	require.NoError(t, scanned.Scan(`{"work","urgent"}`))
	assert.Equal(t, []string{"work", "urgent"}, []string(scanned))
}

func TestSchedule_Validate(t *testing.T) {
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	before := start.Add(-time.Minute)
	after := start.Add(30 * time.Minute)

	tests := []struct {
		name     string
		schedule Schedule
		errMsg   string
	}{
		{
			name:     "Valid with end",
			schedule: Schedule{UserID: 1, Title: "Team Standup", StartTime: start, EndTime: &after},
		},
		{
			name:     "Missing title",
			schedule: Schedule{UserID: 1, StartTime: start},
			errMsg:   "title cannot be empty",
		},
		{
			name:     "Missing start",
			schedule: Schedule{UserID: 1, Title: "Lunch"},
			errMsg:   "start time is required",
		},
		{
			name:     "End before start",
			schedule: Schedule{UserID: 1, Title: "Lunch", StartTime: start, EndTime: &before},
			errMsg:   "end time must be after start time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSchedule_OnDay(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	s := Schedule{StartTime: time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)}

	assert.True(t, s.OnDay(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)))
	// 23:30 UTC is already the next day at UTC+1
	assert.False(t, s.OnDay(time.Date(2025, 3, 10, 8, 0, 0, 0, lagos)))
	assert.True(t, s.OnDay(time.Date(2025, 3, 11, 8, 0, 0, 0, lagos)))
}

func TestReminder_Validate(t *testing.T) {
	at := time.Now().Add(time.Hour)

	valid := Reminder{UserID: 1, TaskID: 2, Description: "Call dentist", RemindAt: at, Status: ReminderPending}
	assert.NoError(t, valid.Validate())
	assert.True(t, valid.IsPending())

	noTask := valid
	noTask.TaskID = 0
	assert.Error(t, noTask.Validate())

	badStatus := valid
	badStatus.Status = "snoozed"
	err := badStatus.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid reminder status")

	sent := valid
	sent.Status = ReminderSent
	assert.False(t, sent.IsPending())
}

func TestActivityLog_Details(t *testing.T) {
	var a ActivityLog
	require.NoError(t, a.SetDetails(map[string]interface{}{"task_id": 4, "source": "chat"}))

	details, err := a.DetailsMap()
	require.NoError(t, err)
	assert.EqualValues(t, 4, details["task_id"])
	assert.Equal(t, "chat", details["source"])

	require.NoError(t, a.SetDetails(nil))
	assert.Empty(t, a.Details)
}

func TestAPIKey_Permissions(t *testing.T) {
	var k APIKey
	assert.Empty(t, k.GetPermissions())

	k.SetPermissions(DefaultAPIKeyPermissions)
	assert.Equal(t, DefaultAPIKeyPermissions, k.GetPermissions())
}

func TestBeforeSave_NormalisesToUTC(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	local := time.Date(2025, 3, 10, 9, 0, 0, 0, lagos)

	s := Schedule{StartTime: local, EndTime: &local}
	require.NoError(t, s.BeforeSave(nil))
	assert.Equal(t, time.UTC, s.StartTime.Location())
	assert.Equal(t, 8, s.StartTime.Hour())
	assert.Equal(t, time.UTC, s.EndTime.Location())

	task := Task{DueDate: &local}
	require.NoError(t, task.BeforeSave(nil))
	assert.True(t, task.DueDate.Equal(local))
	assert.Equal(t, time.UTC, task.DueDate.Location())
	assert.Nil(t, task.CompletedAt)
}
