package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ksred/plansmart/internal/services"
	"github.com/ksred/plansmart/internal/utils"
)

// Services are the application services the tools call
type Services struct {
	Assistant *services.Assistant
	Tasks     *services.TaskService
	Schedules *services.ScheduleService
	Reminders *services.ReminderService
}

// Handler runs MCP tools on behalf of a user
type Handler struct {
	svc    Services
	logger zerolog.Logger
	now    func() time.Time
}

// NewHandler creates a new MCP handler
func NewHandler(svc Services, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With().Str("component", "mcp").Logger(),
		now:    time.Now,
	}
}

type toolFunc func(h *Handler, ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error)

var toolFuncs = map[string]toolFunc{
	ToolProcessInput:     (*Handler).handleProcessInput,
	ToolCreateTask:       (*Handler).handleCreateTask,
	ToolListTasks:        (*Handler).handleListTasks,
	ToolCompleteTask:     (*Handler).handleCompleteTask,
	ToolCreateSchedule:   (*Handler).handleCreateSchedule,
	ToolListSchedules:    (*Handler).handleListSchedules,
	ToolScheduleReminder: (*Handler).handleScheduleReminder,
	ToolCancelReminder:   (*Handler).handleCancelReminder,
}

// Call runs the named tool. Failures the caller can fix come back as an
// unsuccessful ToolResponse; the error is reserved for unknown tools.
func (h *Handler) Call(ctx context.Context, userID uint, name string, params json.RawMessage) (*ToolResponse, error) {
	fn, ok := toolFuncs[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	h.logger.Debug().Str("tool", name).Uint("user_id", userID).Msg("Tool called")
	resp, err := fn(h, ctx, userID, params)
	if err != nil {
		if !utils.IsValidationError(err) && !utils.IsNotFoundError(err) && !utils.IsConflictError(err) {
			h.logger.Error().Err(err).Str("tool", name).Msg("Tool failed")
		}
		return NewErrorResponse(utils.PublicMessage(err)), nil
	}
	return resp, nil
}

// Overview returns today's overview for the overview resource
func (h *Handler) Overview(ctx context.Context, userID uint) (*services.Overview, error) {
	return h.svc.Assistant.Overview(ctx, userID, h.now())
}

// PlanDayText builds the plan_day prompt from today's overview
func (h *Handler) PlanDayText(ctx context.Context, userID uint, focus string) (string, error) {
	overview, err := h.Overview(ctx, userID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Help me plan the rest of %s.\n\n", overview.Date)
	if len(overview.Schedules) == 0 {
		b.WriteString("I have nothing scheduled today.\n")
	} else {
		b.WriteString("My schedule today:\n")
		for _, sch := range overview.Schedules {
			fmt.Fprintf(&b, "- %s at %s\n", sch.Title, sch.StartTime.In(h.svc.Assistant.Location()).Format("15:04"))
		}
	}
	if len(overview.Reminders) > 0 {
		b.WriteString("Pending reminders:\n")
		for _, r := range overview.Reminders {
			fmt.Fprintf(&b, "- %s at %s\n", r.Description, r.RemindAt.In(h.svc.Assistant.Location()).Format("2006-01-02 15:04"))
		}
	}
	fmt.Fprintf(&b, "%s\n", overview.Summary)
	if focus = strings.TrimSpace(focus); focus != "" {
		fmt.Fprintf(&b, "\nToday I want to focus on: %s\n", focus)
	}
	b.WriteString("\nSuggest an order for my open tasks and use the tools to schedule anything that needs a time slot.")
	return b.String(), nil
}

func decode(params json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(params, v); err != nil {
		return utils.WrapValidationError("arguments", fmt.Sprintf("invalid request format: %v", err))
	}
	return nil
}

func (h *Handler) parseTime(field, value string) (time.Time, error) {
	t, err := services.ParseTimestamp(value, h.svc.Assistant.Location())
	if err != nil {
		return time.Time{}, utils.InvalidFieldError(field, fmt.Sprintf("cannot parse %q as a time", value))
	}
	return t, nil
}

func (h *Handler) optionalTime(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := h.parseTime(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) handleProcessInput(ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error) {
	var req ProcessInputRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}

	result, err := h.svc.Assistant.ProcessInput(ctx, userID, req.Text)
	if err != nil {
		return nil, err
	}

	resp := NewSuccessResponse(result.Message, result)
	resp.Meta = &ResponseMeta{
		Count: len(result.Created.Tasks) + len(result.Created.Schedules) + len(result.Created.Reminders),
		Mode:  result.Mode,
	}
	return resp, nil
}

func (h *Handler) handleCreateTask(ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error) {
	var req CreateTaskRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	due, err := h.optionalTime("due_date", req.DueDate)
	if err != nil {
		return nil, err
	}

	task, err := h.svc.Tasks.Create(ctx, userID, services.CreateTaskInput{
		Description: req.Description,
		Schedule:    req.Schedule,
		DueDate:     due,
		Tags:        req.Tags,
	})
	if err != nil {
		return nil, err
	}
	return NewSuccessResponse("Task created", task), nil
}

func (h *Handler) handleListTasks(ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error) {
	var req ListTasksRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}

	tasks, err := h.svc.Tasks.List(ctx, userID, req.Completed)
	if err != nil {
		return nil, err
	}
	return NewSuccessResponse("", tasks).WithCount(len(tasks)), nil
}

func (h *Handler) handleCompleteTask(ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error) {
	var req CompleteTaskRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.ID == 0 {
		return nil, utils.RequiredFieldError("id")
	}

	task, err := h.svc.Tasks.MarkDone(ctx, userID, req.ID)
	if err != nil {
		return nil, err
	}
	return NewSuccessResponse("Task marked as done", task), nil
}

func (h *Handler) handleCreateSchedule(ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error) {
	var req CreateScheduleRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.StartTime) == "" {
		return nil, utils.RequiredFieldError("start_time")
	}
	start, err := h.parseTime("start_time", req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := h.optionalTime("end_time", req.EndTime)
	if err != nil {
		return nil, err
	}

	schedule, err := h.svc.Schedules.Create(ctx, userID, services.CreateScheduleInput{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
	})
	if err != nil {
		return nil, err
	}
	return NewSuccessResponse("Schedule created", schedule), nil
}

func (h *Handler) handleListSchedules(ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error) {
	var req ListSchedulesRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}

	date := strings.TrimSpace(strings.ToLower(req.Date))
	if date == "" {
		schedules, err := h.svc.Schedules.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		return NewSuccessResponse("", schedules).WithCount(len(schedules)), nil
	}

	day := h.now().In(h.svc.Assistant.Location())
	if date != "today" {
		parsed, err := time.ParseInLocation("2006-01-02", date, h.svc.Assistant.Location())
		if err != nil {
			return nil, utils.InvalidFieldError("date", "must be YYYY-MM-DD or 'today'")
		}
		day = parsed
	}

	schedules, err := h.svc.Schedules.ListForDay(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return NewSuccessResponse("", schedules).WithCount(len(schedules)), nil
}

func (h *Handler) handleScheduleReminder(ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error) {
	var req ScheduleReminderRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Time) == "" {
		return nil, utils.RequiredFieldError("time")
	}
	at, err := h.parseTime("time", req.Time)
	if err != nil {
		return nil, err
	}

	if req.TaskID != 0 {
		reminder, err := h.svc.Reminders.ScheduleForTask(ctx, userID, req.TaskID, at)
		if err != nil {
			return nil, err
		}
		return NewSuccessResponse("Reminder scheduled", reminder), nil
	}

	reminder, err := h.svc.Reminders.ScheduleReminder(ctx, userID, req.Description, at)
	if err != nil {
		return nil, err
	}
	return NewSuccessResponse("Reminder scheduled", reminder), nil
}

func (h *Handler) handleCancelReminder(ctx context.Context, userID uint, params json.RawMessage) (*ToolResponse, error) {
	var req CancelReminderRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.ID == 0 {
		return nil, utils.RequiredFieldError("id")
	}

	reminder, err := h.svc.Reminders.Cancel(ctx, userID, req.ID)
	if err != nil {
		return nil, err
	}
	return NewSuccessResponse("Reminder cancelled", reminder), nil
}
