package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parserNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestRuleParser_ParseText(t *testing.T) {
	parser := NewRuleParser(time.UTC, fixedClock(parserNow))

	tests := []struct {
		name          string
		text          string
		tasks         []string
		schedules     []ScheduleIntent
		updates       []ScheduleUpdateIntent
		reminders     []ReminderIntent
		completed     *bool
		clarification bool
		response      string
	}{
		{
			name:     "Add task",
			text:     "Add a task to buy milk",
			tasks:    []string{"buy milk"},
			response: ResponseProcessed,
		},
		{
			name:     "Need to",
			text:     "I need to finish the report",
			tasks:    []string{"finish the report"},
			response: ResponseProcessed,
		},
		{
			name:      "Reminder in minutes replaces the remind-me task",
			text:      "Remind me to call John in 10 minutes",
			reminders: []ReminderIntent{{Description: "call John", Time: "2025-03-10T09:10:00"}},
			response:  ResponseProcessed,
		},
		{
			name:      "Reminder in hours",
			text:      "set a reminder to check the oven in 2 hours",
			reminders: []ReminderIntent{{Description: "check the oven", Time: "2025-03-10T11:00:00"}},
			response:  ResponseProcessed,
		},
		{
			name:      "Reminder at 12h time",
			text:      "Remind me to pay rent at 5pm",
			reminders: []ReminderIntent{{Description: "pay rent", Time: "2025-03-10T17:00:00"}},
			response:  ResponseProcessed,
		},
		{
			name:      "Reminder at past clock time rolls to tomorrow",
			text:      "Remind me to stretch at 8:00",
			reminders: []ReminderIntent{{Description: "stretch", Time: "2025-03-11T08:00:00"}},
			response:  ResponseProcessed,
		},
		{
			name:          "Unreadable reminder time keeps the task",
			text:          "Remind me to sleep in a while",
			tasks:         []string{"to sleep in a while"},
			clarification: true,
			response:      ResponseProcessed,
		},
		{
			name:      "Schedule with 24h clock",
			text:      "Schedule team meeting at 14:00",
			schedules: []ScheduleIntent{{Title: "team meeting", StartTime: "2025-03-10T14:00:00"}},
			response:  ResponseProcessed,
		},
		{
			name:      "Plan with 12h clock",
			text:      "Plan dinner for 7:30 pm",
			schedules: []ScheduleIntent{{Title: "dinner", StartTime: "2025-03-10T19:30:00"}},
			response:  ResponseProcessed,
		},
		{
			name:          "Schedule without a readable time",
			text:          "Schedule lunch at noon",
			clarification: true,
			response:      ResponseUnclear,
		},
		{
			name:     "Reschedule",
			text:     "Reschedule standup to 10:30",
			updates:  []ScheduleUpdateIntent{{Title: "standup", NewStartTime: "2025-03-10T10:30:00"}},
			response: ResponseUnclear,
		},
		{
			name:      "Midnight is 12am",
			text:      "Schedule backup job at 12am",
			schedules: []ScheduleIntent{{Title: "backup job", StartTime: "2025-03-10T00:00:00"}},
			response:  ResponseProcessed,
		},
		{
			name:      "Noon is 12pm",
			text:      "Schedule lunch at 12pm",
			schedules: []ScheduleIntent{{Title: "lunch", StartTime: "2025-03-10T12:00:00"}},
			response:  ResponseProcessed,
		},
		{
			name:      "12:30 am with a space",
			text:      "Schedule night run at 12:30 am",
			schedules: []ScheduleIntent{{Title: "night run", StartTime: "2025-03-10T00:30:00"}},
			response:  ResponseProcessed,
		},
		{
			name:          "Hour out of range for 12h clock",
			text:          "Schedule gym at 13pm",
			clarification: true,
			response:      ResponseUnclear,
		},
		{
			name:      "Reminder at 12am rolls to tomorrow",
			text:      "Remind me to take pills at 12am",
			reminders: []ReminderIntent{{Description: "take pills", Time: "2025-03-11T00:00:00"}},
			response:  ResponseProcessed,
		},
		{
			name:      "Reminder at 12pm stays today",
			text:      "Remind me to eat at 12pm",
			reminders: []ReminderIntent{{Description: "eat", Time: "2025-03-10T12:00:00"}},
			response:  ResponseProcessed,
		},
		{
			name:          "Reschedule to a word",
			text:          "Reschedule standup to noon",
			clarification: true,
			response:      ResponseUnclear,
		},
		{
			name:          "Reschedule accepts HH:MM only",
			text:          "Reschedule standup to 3pm",
			clarification: true,
			response:      ResponseUnclear,
		},
		{
			name:      "Completed query",
			text:      "Show completed tasks",
			completed: boolPtr(true),
			response:  ResponseQuery,
		},
		{
			name:      "Open query",
			text:      "what are my tasks",
			completed: boolPtr(false),
			response:  ResponseQuery,
		},
		{
			name:     "Nothing recognised",
			text:     "Hello there",
			response: ResponseUnclear,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parser.ParseText(tt.text)

			assert.Equal(t, nonNil(tt.tasks), got.Tasks)
			assert.Equal(t, nonNilSchedules(tt.schedules), got.Schedules)
			assert.Equal(t, nonNilUpdates(tt.updates), got.UpdateSchedules)
			assert.Equal(t, nonNilReminders(tt.reminders), got.Reminders)
			assert.Equal(t, tt.clarification, got.Clarification)
			assert.Equal(t, tt.response, got.Response)

			if tt.completed == nil {
				assert.Nil(t, got.Query)
			} else {
				require.NotNil(t, got.Query)
				assert.Equal(t, *tt.completed, *got.Query.Completed)
			}
		})
	}
}

func TestParsedInput_Intents(t *testing.T) {
	completed := false
	p := &ParsedInput{
		Tasks:     []string{"a"},
		Reminders: []ReminderIntent{{Description: "b"}},
		Query:     &TaskQuery{Completed: &completed},
	}
	assert.Equal(t, []string{"add_task", "set_reminder", "query_tasks"}, p.Intents())
	assert.True(t, p.HasActions())

	empty := &ParsedInput{Query: &TaskQuery{}}
	empty.normalize()
	assert.Nil(t, empty.Query)
	assert.False(t, empty.HasActions())
	assert.Empty(t, empty.Intents())
}

func TestParseTimestamp(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)

	got, err := ParseTimestamp("2025-03-10T14:00:00", lagos)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)))

	got, err = ParseTimestamp("2025-03-10T14:00:00Z", lagos)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)))

	got, err = ParseTimestamp(" 2025-03-10 14:30 ", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Minute())

	_, err = ParseTimestamp("tomorrow-ish", time.UTC)
	assert.Error(t, err)
}

func TestLLMParser_Parse(t *testing.T) {
	chat := &stubChat{responses: []string{"```json\n" + `{
		"tasks": ["Buy groceries"],
		"schedules": [{"title": "Gym", "start_time": "2025-03-10T18:00:00"}],
		"update_schedules": [],
		"reminders": [],
		"query": {},
		"clarification": false,
		"response": "Added it. Anything else?"
	}` + "\n```"}}
	parser := NewLLMParser(newTestLLM(chat), time.UTC, zerolog.Nop())

	history := []HistoryEntry{{Request: "hi", Response: "Hello!"}}
	parsed, err := parser.Parse(context.Background(), ParseRequest{
		Text:        "Buy groceries and gym at 6pm",
		History:     history,
		RecentTasks: []models.Task{{Description: "Pay rent"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Buy groceries"}, parsed.Tasks)
	require.Len(t, parsed.Schedules, 1)
	assert.Equal(t, "Gym", parsed.Schedules[0].Title)
	assert.Nil(t, parsed.Query)
	assert.NotNil(t, parsed.Reminders)
	assert.Equal(t, "Added it. Anything else?", parsed.Response)

	require.Equal(t, 1, chat.calls())
	req := chat.requests[0]
	require.Len(t, req.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[1].Role)
	assert.Contains(t, req.Messages[2].Content, "Pay rent")
	assert.Contains(t, req.Messages[2].Content, "Buy groceries and gym at 6pm")
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
}

func TestLLMParser_InvalidJSON(t *testing.T) {
	chat := &stubChat{responses: []string{"sorry, I can't help with that"}}
	parser := NewLLMParser(newTestLLM(chat), time.UTC, zerolog.Nop())

	_, err := parser.Parse(context.Background(), ParseRequest{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestFallbackParser(t *testing.T) {
	rules := NewRuleParser(time.UTC, fixedClock(parserNow))
	ctx := context.Background()
	req := ParseRequest{Text: "Add a task to water the plants"}

	t.Run("Rules only", func(t *testing.T) {
		parser := NewFallbackParser(nil, rules, zerolog.Nop())
		assert.False(t, parser.LLMEnabled())

		parsed, mode, err := parser.ParseWithMode(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.ModeRuleBased, mode)
		assert.Equal(t, []string{"water the plants"}, parsed.Tasks)
	})

	t.Run("LLM succeeds", func(t *testing.T) {
		chat := &stubChat{responses: []string{`{"tasks":["water plants"],"response":"Done"}`}}
		parser := NewFallbackParser(NewLLMParser(newTestLLM(chat), time.UTC, zerolog.Nop()), rules, zerolog.Nop())
		assert.True(t, parser.LLMEnabled())

		parsed, mode, err := parser.ParseWithMode(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.ModeLLM, mode)
		assert.Equal(t, []string{"water plants"}, parsed.Tasks)
	})

	t.Run("LLM fails", func(t *testing.T) {
		chat := &stubChat{errs: []error{&openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}}}
		parser := NewFallbackParser(NewLLMParser(newTestLLM(chat), time.UTC, zerolog.Nop()), rules, zerolog.Nop())

		parsed, mode, err := parser.ParseWithMode(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.ModeRuleBased, mode)
		assert.Equal(t, []string{"water the plants"}, parsed.Tasks)
		assert.Equal(t, 1, chat.calls())
	})
}

func boolPtr(b bool) *bool {
	return &b
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSchedules(s []ScheduleIntent) []ScheduleIntent {
	if s == nil {
		return []ScheduleIntent{}
	}
	return s
}

func nonNilUpdates(s []ScheduleUpdateIntent) []ScheduleUpdateIntent {
	if s == nil {
		return []ScheduleUpdateIntent{}
	}
	return s
}

func nonNilReminders(s []ReminderIntent) []ReminderIntent {
	if s == nil {
		return []ReminderIntent{}
	}
	return s
}
