package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolProcessInput     = "process_input"
	ToolCreateTask       = "create_task"
	ToolListTasks        = "list_tasks"
	ToolCompleteTask     = "complete_task"
	ToolCreateSchedule   = "create_schedule"
	ToolListSchedules    = "list_schedules"
	ToolScheduleReminder = "schedule_reminder"
	ToolCancelReminder   = "cancel_reminder"
)

// OverviewURI is the resource holding today's overview
const OverviewURI = "assistant://overview"

// PromptPlanDay asks the model to plan the user's day
const PromptPlanDay = "plan_day"

const timeHint = "ISO 8601, e.g. 2025-03-10T14:00:00. Times without an offset use the assistant's time zone."

// Tools returns the tool definitions shared by the stdio and HTTP transports
func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolProcessInput,
			mcp.WithDescription("Hand a free-text request to the planning assistant. It creates the tasks, schedules and reminders the text asks for and answers questions about tasks. Use for anything phrased naturally, e.g. 'remind me to call John in 10 minutes'."),
			mcp.WithString("text", mcp.Required(), mcp.Description("What the user said")),
		),
		mcp.NewTool(ToolCreateTask,
			mcp.WithDescription("Create a to-do task"),
			mcp.WithString("description", mcp.Required(), mcp.Description("What needs doing")),
			mcp.WithString("schedule", mcp.Description("Title of the schedule this task belongs to")),
			mcp.WithString("due_date", mcp.Description("Due date, "+timeHint)),
			mcp.WithArray("tags", mcp.Description("Optional tags"), mcp.Items(map[string]interface{}{"type": "string"})),
		),
		mcp.NewTool(ToolListTasks,
			mcp.WithDescription("List the user's tasks, optionally only completed or only open ones"),
			mcp.WithBoolean("completed", mcp.Description("true for completed tasks, false for open tasks, omit for all")),
		),
		mcp.NewTool(ToolCompleteTask,
			mcp.WithDescription("Mark a task as done. Its pending reminder is cancelled."),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Task ID"), mcp.Min(1)),
		),
		mcp.NewTool(ToolCreateSchedule,
			mcp.WithDescription("Create a calendar event"),
			mcp.WithString("title", mcp.Required(), mcp.Description("Event title")),
			mcp.WithString("start_time", mcp.Required(), mcp.Description("Start, "+timeHint)),
			mcp.WithString("end_time", mcp.Description("End, "+timeHint)),
			mcp.WithString("description", mcp.Description("Notes")),
		),
		mcp.NewTool(ToolListSchedules,
			mcp.WithDescription("List schedules, either all of them or those on one day"),
			mcp.WithString("date", mcp.Description("Day to list as YYYY-MM-DD, or 'today'")),
		),
		mcp.NewTool(ToolScheduleReminder,
			mcp.WithDescription("Set a one-shot reminder. Pass a description to create a new task, or task_id to remind about an existing one."),
			mcp.WithString("time", mcp.Required(), mcp.Description("When to remind, "+timeHint)),
			mcp.WithString("description", mcp.Description("What to be reminded about")),
			mcp.WithNumber("task_id", mcp.Description("Existing task ID"), mcp.Min(1)),
		),
		mcp.NewTool(ToolCancelReminder,
			mcp.WithDescription("Cancel a pending reminder"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID"), mcp.Min(1)),
		),
	}
}

// OverviewResource describes the overview resource
func OverviewResource() mcp.Resource {
	return mcp.Resource{
		URI:         OverviewURI,
		Name:        "Today's overview",
		Description: "Pending reminders, today's schedules and the number of tasks completed today",
		MIMEType:    "application/json",
	}
}

// PlanDayPrompt describes the plan_day prompt
func PlanDayPrompt() mcp.Prompt {
	return mcp.Prompt{
		Name:        PromptPlanDay,
		Description: "Plan the rest of the day around the user's schedules, tasks and reminders",
		Arguments: []mcp.PromptArgument{
			{
				Name:        "focus",
				Description: "What the user wants to get done today",
				Required:    false,
			},
		},
	}
}
