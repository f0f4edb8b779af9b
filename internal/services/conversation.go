package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"gorm.io/gorm"
)

// Conversation intents
const (
	IntentCreateSchedule = "create_schedule"
	IntentAddTask        = "add_task"
	IntentViewTasks      = "view_tasks"
	IntentViewSchedules  = "view_schedules"
	IntentHelp           = "help"
	IntentGreeting       = "greeting"
	IntentMarkDone       = "mark_done"
	IntentGeneralQuery   = "general_query"
)

// SuggestionPrompt is the text used when the user asks for a suggestion
const SuggestionPrompt = "What should I do?"

type intentKeywords struct {
	intent   string
	keywords []string
}

// Keyword table in detection order
var conversationIntents = []intentKeywords{
	{IntentCreateSchedule, []string{"create schedule", "new schedule", "schedule", "add schedule", "make schedule"}},
	{IntentAddTask, []string{"create task", "add task", "new task", "add to do", "add activity"}},
	{IntentViewTasks, []string{"show tasks", "my tasks", "list tasks", "what tasks", "view tasks"}},
	{IntentViewSchedules, []string{"show schedules", "my schedules", "view schedules", "list schedules", "what schedules"}},
	{IntentHelp, []string{"help", "what can you do", "commands", "suggest", "advice"}},
	{IntentGreeting, []string{"hi", "hello", "hey", "good morning", "good evening"}},
	{IntentMarkDone, []string{"mark done", "complete task", "finished", "done with"}},
}

type compiledIntent struct {
	intent   string
	patterns []*regexp.Regexp
}

var compiledIntents = compileIntents(conversationIntents)

// compileIntents anchors each keyword at a word start. Keywords longer than
// three letters also match their plural.
func compileIntents(table []intentKeywords) []compiledIntent {
	out := make([]compiledIntent, 0, len(table))
	for _, entry := range table {
		ci := compiledIntent{intent: entry.intent}
		for _, kw := range entry.keywords {
			suffix := `\b`
			if len(kw) > 3 {
				suffix = `s?\b`
			}
			ci.patterns = append(ci.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+suffix))
		}
		out = append(out, ci)
	}
	return out
}

// DetectIntents returns every intent whose keywords appear in text, in table
// order, or general_query when none do
func DetectIntents(text string) []string {
	var detected []string
	for _, ci := range compiledIntents {
		for _, p := range ci.patterns {
			if p.MatchString(text) {
				detected = append(detected, ci.intent)
				break
			}
		}
	}
	if len(detected) == 0 {
		return []string{IntentGeneralQuery}
	}
	return detected
}

// UserState summarises a user's tasks and schedules
type UserState struct {
	TotalTasks         int      `json:"total_tasks"`
	IncompleteTasks    int      `json:"incomplete_tasks"`
	CompletedTasks     int      `json:"completed_tasks"`
	TotalSchedules     int      `json:"total_schedules"`
	TodaySchedules     int      `json:"today_schedules"`
	HasTasks           bool     `json:"has_tasks"`
	HasSchedules       bool     `json:"has_schedules"`
	IncompleteTaskList []string `json:"incomplete_task_list"`
	TodayScheduleList  []string `json:"today_schedule_list"`
}

// ChatReply is one answered chat message
type ChatReply struct {
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	Intents     []string  `json:"intents"`
	Mode        string    `json:"mode"`
	Timestamp   time.Time `json:"timestamp"`
}

// ConversationEngine answers chat messages with canned, state-aware replies
// or, when an LLM is configured, with model output
type ConversationEngine struct {
	db       *gorm.DB
	llm      *LLMService
	log      *ConversationLog
	location *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

// NewConversationEngine creates an engine. llm may be nil for rule-based mode.
func NewConversationEngine(db *gorm.DB, llm *LLMService, log *ConversationLog, loc *time.Location, logger zerolog.Logger) *ConversationEngine {
	if loc == nil {
		loc = time.Local
	}
	return &ConversationEngine{
		db:       db,
		llm:      llm,
		log:      log,
		location: loc,
		logger:   logger.With().Str("service", "conversation").Logger(),
		now:      time.Now,
	}
}

// LLMEnabled reports whether replies come from a model
func (e *ConversationEngine) LLMEnabled() bool {
	return e.llm != nil
}

// UserState loads the counts and lists the replies are built from
func (e *ConversationEngine) UserState(ctx context.Context, userID uint) (*UserState, error) {
	var tasks []models.Task
	if err := e.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC").Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, utils.WrapDatabaseError("load tasks", err)
	}
	var schedules []models.Schedule
	if err := e.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("start_time ASC").Order("id ASC").Find(&schedules).Error; err != nil {
		return nil, utils.WrapDatabaseError("load schedules", err)
	}

	state := &UserState{
		TotalTasks:         len(tasks),
		TotalSchedules:     len(schedules),
		IncompleteTaskList: []string{},
		TodayScheduleList:  []string{},
	}
	for _, t := range tasks {
		if t.Completed {
			state.CompletedTasks++
			continue
		}
		state.IncompleteTasks++
		if len(state.IncompleteTaskList) < 5 {
			state.IncompleteTaskList = append(state.IncompleteTaskList, t.Description)
		}
	}

	today := e.now().In(e.location)
	for i := range schedules {
		if schedules[i].OnDay(today) {
			state.TodaySchedules++
			state.TodayScheduleList = append(state.TodayScheduleList, schedules[i].Title)
		}
	}

	state.HasTasks = state.IncompleteTasks > 0
	state.HasSchedules = state.TotalSchedules > 0
	return state, nil
}

// Respond answers text and records the turn in the conversation log
func (e *ConversationEngine) Respond(ctx context.Context, userID uint, text string) (*ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.RequiredFieldError("message")
	}

	req, err := e.log.RecordRequest(ctx, userID, text, models.SourceChat)
	if err != nil {
		return nil, err
	}

	reply, err := e.Generate(ctx, userID, text)
	if err != nil {
		return nil, err
	}

	if _, err := e.log.RecordResponse(ctx, req.ID, reply.AIResponse, reply.Mode, reply.Intents); err != nil {
		e.logger.Warn().Err(err).Uint("request_id", req.ID).Msg("Failed to record chat response")
	}
	return reply, nil
}

// Generate builds a reply without recording it
func (e *ConversationEngine) Generate(ctx context.Context, userID uint, text string) (*ChatReply, error) {
	state, err := e.UserState(ctx, userID)
	if err != nil {
		return nil, err
	}
	intents := DetectIntents(text)

	reply := &ChatReply{
		UserMessage: text,
		Intents:     intents,
		Mode:        models.ModeRuleBased,
		Timestamp:   e.now(),
	}

	if e.llm != nil {
		content, err := e.llmResponse(ctx, text, state)
		if err == nil {
			reply.AIResponse = content
			reply.Mode = models.ModeLLM
			return reply, nil
		}
		e.logger.Warn().Err(err).Msg("LLM reply failed, using rule-based reply")
	}

	reply.AIResponse = e.ruleResponse(state, intents)
	return reply, nil
}

// Suggestion answers the generic "what should I do" question
func (e *ConversationEngine) Suggestion(ctx context.Context, userID uint) (*ChatReply, error) {
	return e.Respond(ctx, userID, SuggestionPrompt)
}

func (e *ConversationEngine) llmResponse(ctx context.Context, text string, state *UserState) (string, error) {
	system := fmt.Sprintf(`You are PLANSMART, an intelligent scheduling and task management AI assistant.
You help users create schedules, manage tasks, and organize their time effectively.
You are friendly, concise, and use emojis to make interactions engaging.

Current User State:
%s
Guidelines:
- Give suggestions based on their current state
- If they have no schedules, suggest creating one
- If they have tasks but no schedule, suggest organizing them
- Be conversational but concise (max 3-4 sentences for main message)
- Use relevant emojis (📅 for schedules, ✅ for tasks, ⏰ for time, etc.)
- Always end with actionable suggestions or next steps
- Don't repeat previous responses`, buildStateContext(state))

	return e.llm.Complete(ctx, []openai.ChatCompletionMessage{
		systemMessage(system),
		userMessage(text),
	}, CompletionOptions{})
}

func buildStateContext(state *UserState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Incomplete Tasks: %d\n", state.IncompleteTasks)
	fmt.Fprintf(&b, "- Completed Tasks: %d\n", state.CompletedTasks)
	fmt.Fprintf(&b, "- Total Schedules: %d\n", state.TotalSchedules)
	fmt.Fprintf(&b, "- Today's Schedules: %d\n", state.TodaySchedules)
	if len(state.IncompleteTaskList) > 0 {
		fmt.Fprintf(&b, "- Recent Tasks: %s\n", strings.Join(state.IncompleteTaskList, ", "))
	}
	if len(state.TodayScheduleList) > 0 {
		fmt.Fprintf(&b, "- Today's Events: %s\n", strings.Join(state.TodayScheduleList, ", "))
	}
	return b.String()
}

func (e *ConversationEngine) ruleResponse(state *UserState, intents []string) string {
	has := func(intent string) bool {
		for _, i := range intents {
			if i == intent {
				return true
			}
		}
		return false
	}

	switch {
	case has(IntentGreeting):
		return e.greetingResponse(state)
	case has(IntentHelp), has(IntentGeneralQuery):
		return suggestionResponse(state)
	case has(IntentCreateSchedule):
		return "Great! Let's create a new schedule. What's the name of your schedule? (e.g., 'Work Meeting', 'Workout Session')"
	case has(IntentAddTask):
		return "Perfect! I'll help you add a task. What's the task description? (e.g., 'Complete project report')"
	case has(IntentViewTasks):
		return viewTasksResponse(state)
	case has(IntentViewSchedules):
		return viewSchedulesResponse(state)
	default:
		return suggestionResponse(state)
	}
}

func (e *ConversationEngine) greetingResponse(state *UserState) string {
	var greeting string
	switch hour := e.now().In(e.location).Hour(); {
	case hour < 12:
		greeting = "Good morning! 🌅"
	case hour < 18:
		greeting = "Good afternoon! ☀️"
	default:
		greeting = "Good evening! 🌙"
	}

	switch {
	case state.TodaySchedules > 0:
		return fmt.Sprintf("%s You have %d schedule(s) for today. Would you like to add tasks to complete them, or view your full schedule?", greeting, state.TodaySchedules)
	case state.IncompleteTasks > 0:
		return fmt.Sprintf("%s You have %d incomplete task(s). Should I help you create a schedule for them?", greeting, state.IncompleteTasks)
	default:
		return greeting + " Would you like to create a new schedule or add some tasks?"
	}
}

func suggestionResponse(state *UserState) string {
	var suggestion string
	switch {
	case state.HasSchedules && !state.HasTasks:
		suggestion = "📅 You have schedules but no tasks. Would you like to add tasks to your existing schedules?"
	case !state.HasSchedules && state.HasTasks:
		suggestion = "✅ You have tasks but no schedule. Should I create a schedule to organize them?"
	case !state.HasSchedules && !state.HasTasks:
		suggestion = "🎯 You're all set! Would you like to create a new schedule or add your first task?"
	case state.IncompleteTasks > 0 && state.TodaySchedules == 0:
		suggestion = fmt.Sprintf("⏰ You have %d incomplete tasks. Want to schedule them for today?", state.IncompleteTasks)
	default:
		suggestion = "✨ Everything looks organized! What would you like to do next?"
	}

	return suggestion + "\n\nWhat would you like to do?\n" +
		"• Create a new schedule\n" +
		"• Add tasks to existing schedules\n" +
		"• View your tasks\n" +
		"• View your schedules"
}

func viewTasksResponse(state *UserState) string {
	if state.IncompleteTasks == 0 {
		return "✅ All done! You have no incomplete tasks."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 You have %d incomplete task(s):\n", state.IncompleteTasks)
	for _, task := range state.IncompleteTaskList {
		fmt.Fprintf(&b, "• %s\n", task)
	}
	b.WriteString("\nWould you like to schedule these tasks or add more?")
	return b.String()
}

func viewSchedulesResponse(state *UserState) string {
	if state.TotalSchedules == 0 {
		return "📅 No schedules yet. Would you like to create one?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 You have %d schedule(s).\n", state.TotalSchedules)
	if state.TodaySchedules > 0 {
		fmt.Fprintf(&b, "\nToday's schedules (%d):\n", state.TodaySchedules)
		for _, title := range state.TodayScheduleList {
			fmt.Fprintf(&b, "• %s\n", title)
		}
	}
	b.WriteString("\nWould you like to add more schedules or tasks?")
	return b.String()
}
