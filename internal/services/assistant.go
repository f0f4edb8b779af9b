package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"gorm.io/gorm"
)

// DefaultConfirmation is used when neither the parser nor the LLM supplied
// a reply
const DefaultConfirmation = "Processed your request successfully. What do you have to do today?"

// recentContextSize is how many recent tasks and schedules the LLM sees
const recentContextSize = 5

// AssistantDeps groups the services the assistant orchestrates
type AssistantDeps struct {
	Tasks     *TaskService
	Schedules *ScheduleService
	Reminders *ReminderService
	Log       *ConversationLog
	Parser    *FallbackParser
	LLM       *LLMService
	Activity  *ActivityService
}

// CreatedItems lists what a processed input wrote
type CreatedItems struct {
	Tasks       []uint   `json:"tasks"`
	Schedules   []uint   `json:"schedules"`
	Reminders   []uint   `json:"reminders"`
	Rescheduled []string `json:"rescheduled"`
}

// ProcessResult is the outcome of ProcessInput
type ProcessResult struct {
	Message string        `json:"message"`
	Parsed  *ParsedInput  `json:"parsed"`
	Mode    string        `json:"mode"`
	Created CreatedItems  `json:"created"`
	Tasks   []models.Task `json:"tasks,omitempty"`
	Skipped []string      `json:"skipped,omitempty"`
}

// Overview is the dashboard for one day
type Overview struct {
	Date           string            `json:"date"`
	Reminders      []models.Reminder `json:"reminders"`
	Schedules      []models.Schedule `json:"schedules"`
	CompletedToday int64             `json:"completed_today"`
	Summary        string            `json:"summary"`
}

// Assistant turns free text into tasks, schedules and reminders
type Assistant struct {
	db           *gorm.DB
	deps         AssistantDeps
	location     *time.Location
	historyLimit int
	logger       zerolog.Logger
}

func NewAssistant(db *gorm.DB, deps AssistantDeps, loc *time.Location, historyLimit int, logger zerolog.Logger) *Assistant {
	if loc == nil {
		loc = time.Local
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Assistant{
		db:           db,
		deps:         deps,
		location:     loc,
		historyLimit: historyLimit,
		logger:       logger.With().Str("service", "assistant").Logger(),
	}
}

// LLMEnabled reports whether input is parsed by a model first
func (a *Assistant) LLMEnabled() bool {
	return a.deps.Parser.LLMEnabled()
}

// Location is the time zone used to interpret times without one
func (a *Assistant) Location() *time.Location {
	return a.location
}

// ProcessInput parses text and applies what it asks for
func (a *Assistant) ProcessInput(ctx context.Context, userID uint, text string) (*ProcessResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.RequiredFieldError("text")
	}

	req, err := a.deps.Log.RecordRequest(ctx, userID, text, models.SourceProcessInput)
	if err != nil {
		return nil, err
	}

	parseReq, err := a.parseRequest(ctx, userID, req.ID, text)
	if err != nil {
		return nil, err
	}

	parsed, mode, err := a.deps.Parser.ParseWithMode(ctx, parseReq)
	if err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}

	result := &ProcessResult{
		Parsed: parsed,
		Mode:   mode,
		Created: CreatedItems{
			Tasks:       []uint{},
			Schedules:   []uint{},
			Reminders:   []uint{},
			Rescheduled: []string{},
		},
	}

	if err := a.applyWrites(ctx, userID, parsed, result); err != nil {
		return nil, err
	}
	a.applyReminders(ctx, userID, parsed, result)

	if parsed.Query != nil {
		tasks, err := a.deps.Tasks.List(ctx, userID, parsed.Query.Completed)
		if err != nil {
			return nil, err
		}
		result.Tasks = tasks
	}

	result.Message = parsed.Response
	if result.Message == "" {
		result.Message = a.confirmation(ctx, text, parsed)
	}

	if _, err := a.deps.Log.RecordResponse(ctx, req.ID, result.Message, mode, parsed.Intents()); err != nil {
		a.logger.Warn().Err(err).Uint("request_id", req.ID).Msg("Failed to record response")
	}

	a.deps.Activity.record(ctx, userID, models.ActivityInputProcessed, map[string]interface{}{
		"request_id": req.ID,
		"mode":       mode,
		"intents":    parsed.Intents(),
	})

	a.logger.Info().
		Uint("user_id", userID).
		Str("mode", mode).
		Int("tasks", len(result.Created.Tasks)).
		Int("schedules", len(result.Created.Schedules)).
		Int("reminders", len(result.Created.Reminders)).
		Int("skipped", len(result.Skipped)).
		Msg("Input processed")

	return result, nil
}

func (a *Assistant) parseRequest(ctx context.Context, userID, requestID uint, text string) (ParseRequest, error) {
	req := ParseRequest{Text: text}
	if !a.LLMEnabled() {
		return req, nil
	}

	var err error
	if req.History, err = a.deps.Log.HistoryBefore(ctx, userID, requestID, a.historyLimit); err != nil {
		return req, err
	}
	if req.RecentTasks, err = a.deps.Tasks.Recent(ctx, userID, recentContextSize); err != nil {
		return req, err
	}
	if req.RecentSchedules, err = a.deps.Schedules.Recent(ctx, userID, recentContextSize); err != nil {
		return req, err
	}
	return req, nil
}

// applyWrites creates tasks and schedules and applies updates in one
// transaction. Unusable items are skipped rather than failing the request.
func (a *Assistant) applyWrites(ctx context.Context, userID uint, parsed *ParsedInput, result *ProcessResult) error {
	if len(parsed.Tasks) == 0 && len(parsed.Schedules) == 0 && len(parsed.UpdateSchedules) == 0 {
		return nil
	}

	var skipped []string
	created := CreatedItems{}
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, desc := range parsed.Tasks {
			task, err := a.deps.Tasks.createTx(tx, userID, CreateTaskInput{Description: desc})
			if utils.IsValidationError(err) {
				skipped = append(skipped, fmt.Sprintf("task %q: %v", desc, err))
				continue
			}
			if err != nil {
				return err
			}
			created.Tasks = append(created.Tasks, task.ID)
		}

		for _, s := range parsed.Schedules {
			start, err := ParseTimestamp(s.StartTime, a.location)
			if err != nil {
				skipped = append(skipped, fmt.Sprintf("schedule %q: invalid start time %q", s.Title, s.StartTime))
				continue
			}
			schedule, err := a.deps.Schedules.createTx(tx, userID, CreateScheduleInput{Title: s.Title, StartTime: start})
			if utils.IsValidationError(err) {
				skipped = append(skipped, fmt.Sprintf("schedule %q: %v", s.Title, err))
				continue
			}
			if err != nil {
				return err
			}
			created.Schedules = append(created.Schedules, schedule.ID)
		}

		for _, u := range parsed.UpdateSchedules {
			start, err := ParseTimestamp(u.NewStartTime, a.location)
			if err != nil {
				skipped = append(skipped, fmt.Sprintf("update %q: invalid start time %q", u.Title, u.NewStartTime))
				continue
			}
			found, err := a.deps.Schedules.rescheduleByTitleTx(tx, userID, u.Title, start)
			if err != nil {
				return err
			}
			if !found {
				skipped = append(skipped, fmt.Sprintf("update %q: no schedule with that title", u.Title))
				continue
			}
			created.Rescheduled = append(created.Rescheduled, u.Title)
		}
		return nil
	})
	if err != nil {
		return err
	}

	result.Created.Tasks = append(result.Created.Tasks, created.Tasks...)
	result.Created.Schedules = append(result.Created.Schedules, created.Schedules...)
	result.Created.Rescheduled = append(result.Created.Rescheduled, created.Rescheduled...)
	result.Skipped = append(result.Skipped, skipped...)
	return nil
}

// applyReminders schedules each reminder on its own; one bad reminder does
// not undo the rest
func (a *Assistant) applyReminders(ctx context.Context, userID uint, parsed *ParsedInput, result *ProcessResult) {
	for _, r := range parsed.Reminders {
		at, err := ParseTimestamp(r.Time, a.location)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("reminder %q: invalid time %q", r.Description, r.Time))
			continue
		}

		reminder, err := a.deps.Reminders.ScheduleReminder(ctx, userID, r.Description, at)
		if err != nil {
			if !utils.IsValidationError(err) {
				a.logger.Error().Err(err).Str("description", r.Description).Msg("Failed to schedule reminder")
			}
			result.Skipped = append(result.Skipped, fmt.Sprintf("reminder %q: %s", r.Description, utils.PublicMessage(err)))
			continue
		}
		result.Created.Tasks = append(result.Created.Tasks, reminder.TaskID)
		result.Created.Reminders = append(result.Created.Reminders, reminder.ID)
	}
}

// confirmation asks the LLM for a conversational confirmation, falling back
// to a fixed sentence
func (a *Assistant) confirmation(ctx context.Context, text string, parsed *ParsedInput) string {
	if a.deps.LLM == nil {
		return DefaultConfirmation
	}

	data, err := json.Marshal(parsed)
	if err != nil {
		return DefaultConfirmation
	}

	prompt := fmt.Sprintf(`You are a helpful AI assistant. The user said: %q

Based on the parsed data: %s

Reply as if you are doing the work while you talk, confirm what was created and end with a question to keep the conversation going. Keep it short and natural.`, text, data)

	content, err := a.deps.LLM.Complete(ctx, []openai.ChatCompletionMessage{userMessage(prompt)}, CompletionOptions{MaxTokens: 150})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to generate confirmation")
		return DefaultConfirmation
	}
	return content
}

// Overview collects pending reminders, the day's schedules and the number
// of tasks completed that day
func (a *Assistant) Overview(ctx context.Context, userID uint, day time.Time) (*Overview, error) {
	day = day.In(a.location)
	start := startOfDay(day)

	reminders, err := a.deps.Reminders.List(ctx, userID, models.ReminderPending)
	if err != nil {
		return nil, err
	}
	schedules, err := a.deps.Schedules.ListForDay(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	completed, err := a.deps.Tasks.CountCompletedBetween(ctx, userID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	return &Overview{
		Date:           start.Format("2006-01-02"),
		Reminders:      reminders,
		Schedules:      schedules,
		CompletedToday: completed,
		Summary:        fmt.Sprintf("You've completed %d tasks today.", completed),
	}, nil
}
