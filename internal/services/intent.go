package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// Canned parser replies
const (
	ResponseProcessed = "Got it! I've processed your request."
	ResponseQuery     = "Here are your tasks."
	ResponseUnclear   = "I'm not sure what you mean. Could you clarify?"
)

type ScheduleIntent struct {
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
}

type ScheduleUpdateIntent struct {
	Title        string `json:"title"`
	NewStartTime string `json:"new_start_time"`
}

type ReminderIntent struct {
	Description string `json:"description"`
	Time        string `json:"time"`
}

// TaskQuery asks for the user's tasks. A nil Completed means all tasks.
type TaskQuery struct {
	Completed *bool  `json:"completed,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

// ParsedInput is the structured reading of one utterance
type ParsedInput struct {
	Tasks           []string               `json:"tasks"`
	Schedules       []ScheduleIntent       `json:"schedules"`
	UpdateSchedules []ScheduleUpdateIntent `json:"update_schedules"`
	Reminders       []ReminderIntent       `json:"reminders"`
	Query           *TaskQuery             `json:"query,omitempty"`
	Clarification   bool                   `json:"clarification"`
	Response        string                 `json:"response"`
}

// HasActions reports whether anything needs to be written
func (p *ParsedInput) HasActions() bool {
	return len(p.Tasks) > 0 || len(p.Schedules) > 0 || len(p.UpdateSchedules) > 0 || len(p.Reminders) > 0
}

// Intents names the kinds of content found, for logging and history
func (p *ParsedInput) Intents() []string {
	var intents []string
	if len(p.Tasks) > 0 {
		intents = append(intents, "add_task")
	}
	if len(p.Schedules) > 0 {
		intents = append(intents, "create_schedule")
	}
	if len(p.UpdateSchedules) > 0 {
		intents = append(intents, "update_schedule")
	}
	if len(p.Reminders) > 0 {
		intents = append(intents, "set_reminder")
	}
	if p.Query != nil {
		intents = append(intents, "query_tasks")
	}
	if p.Clarification {
		intents = append(intents, "clarification")
	}
	return intents
}

// normalize replaces nil slices with empty ones and drops an empty query
func (p *ParsedInput) normalize() {
	if p.Tasks == nil {
		p.Tasks = []string{}
	}
	if p.Schedules == nil {
		p.Schedules = []ScheduleIntent{}
	}
	if p.UpdateSchedules == nil {
		p.UpdateSchedules = []ScheduleUpdateIntent{}
	}
	if p.Reminders == nil {
		p.Reminders = []ReminderIntent{}
	}
	if p.Query != nil && p.Query.Completed == nil && p.Query.Filter == "" {
		p.Query = nil
	}
}

// ParseRequest carries the text and the context a parser may use
type ParseRequest struct {
	Text            string
	History         []HistoryEntry
	RecentTasks     []models.Task
	RecentSchedules []models.Schedule
}

// IntentParser turns free text into a ParsedInput
type IntentParser interface {
	Parse(ctx context.Context, req ParseRequest) (*ParsedInput, error)
}

// RuleParser is the regex based parser. It never fails.
type RuleParser struct {
	now      func() time.Time
	location *time.Location
}

func NewRuleParser(loc *time.Location, now func() time.Time) *RuleParser {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &RuleParser{now: now, location: loc}
}

func (p *RuleParser) Parse(ctx context.Context, req ParseRequest) (*ParsedInput, error) {
	return p.ParseText(req.Text), nil
}

// ParseText applies the pattern tables to text
func (p *RuleParser) ParseText(text string) *ParsedInput {
	now := p.now().In(p.location)
	out := &ParsedInput{}

	taskPattern := -1
	for i, pattern := range taskPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			out.Tasks = append(out.Tasks, strings.TrimSpace(m[1]))
			taskPattern = i
			break
		}
	}

	for _, pattern := range schedulePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		if hour, minute, ok := parseTimeOfDay(strings.TrimSpace(m[2])); ok {
			out.Schedules = append(out.Schedules, ScheduleIntent{
				Title:     title,
				StartTime: atClock(now, hour, minute).Format(isoLayout),
			})
		} else {
			out.Clarification = true
		}
		break
	}

	if m := updatePattern.FindStringSubmatch(text); m != nil {
		if hour, minute, ok := parseClock(m[2]); ok {
			out.UpdateSchedules = append(out.UpdateSchedules, ScheduleUpdateIntent{
				Title:        strings.TrimSpace(m[1]),
				NewStartTime: atClock(now, hour, minute).Format(isoLayout),
			})
		} else {
			out.Clarification = true
		}
	}

	if m := reminderPattern.FindStringSubmatch(text); m != nil {
		if at, ok := parseReminderTime(strings.TrimSpace(m[2]), now); ok {
			out.Reminders = append(out.Reminders, ReminderIntent{
				Description: strings.TrimSpace(m[1]),
				Time:        at.Format(isoLayout),
			})
			// the reminder creates its own task
			if taskPattern == len(taskPatterns)-1 {
				out.Tasks = nil
			}
		} else {
			out.Clarification = true
		}
	}

	for _, q := range queryPatterns {
		if q.pattern.MatchString(text) {
			completed := q.completed
			out.Query = &TaskQuery{Completed: &completed}
			break
		}
	}

	switch {
	case len(out.Tasks) > 0 || len(out.Schedules) > 0 || len(out.Reminders) > 0:
		out.Response = ResponseProcessed
	case out.Query != nil:
		out.Response = ResponseQuery
	default:
		out.Response = ResponseUnclear
	}

	out.normalize()
	return out
}

// LLMParser asks a chat model for the structured reading
type LLMParser struct {
	llm      *LLMService
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

func NewLLMParser(llm *LLMService, loc *time.Location, logger zerolog.Logger) *LLMParser {
	if loc == nil {
		loc = time.Local
	}
	return &LLMParser{
		llm:      llm,
		location: loc,
		now:      time.Now,
		logger:   logger.With().Str("service", "llm_parser").Logger(),
	}
}

func (p *LLMParser) Parse(ctx context.Context, req ParseRequest) (*ParsedInput, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)*2+1)
	for _, turn := range req.History {
		messages = append(messages, userMessage(turn.Request), assistantMessage(turn.Response))
	}
	messages = append(messages, userMessage(p.buildPrompt(req)))

	content, err := p.llm.Complete(ctx, messages, CompletionOptions{JSON: true})
	if err != nil {
		return nil, fmt.Errorf("llm parse: %w", err)
	}

	var parsed ParsedInput
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("llm returned invalid JSON: %w", err)
	}
	parsed.normalize()

	p.logger.Debug().Strs("intents", parsed.Intents()).Msg("Parsed input with LLM")
	return &parsed, nil
}

func (p *LLMParser) buildPrompt(req ParseRequest) string {
	var tasks, schedules strings.Builder
	for _, t := range req.RecentTasks {
		due := "No due date"
		if t.DueDate != nil {
			due = t.DueDate.In(p.location).Format(isoLayout)
		}
		fmt.Fprintf(&tasks, "- %s (Due: %s, Completed: %t)\n", t.Description, due, t.Completed)
	}
	for _, s := range req.RecentSchedules {
		fmt.Fprintf(&schedules, "- %s at %s\n", s.Title, s.StartTime.In(p.location).Format(isoLayout))
	}

	return fmt.Sprintf(`You are the planning assistant of a personal organiser app. You create tasks, schedules and reminders, answer questions about them and keep the conversation going. Use the user's recent items for context.

Current time: %s

User's recent tasks:
%s
User's recent schedules:
%s
User input: %q

Extract the actions in the input:
- tasks: task descriptions to create
- schedules: objects with title and start_time (ISO 8601, today if no date is given)
- update_schedules: objects with title and new_start_time
- reminders: objects with description and time (ISO 8601)
- query: {"completed": true|false, "filter": "..."} when the user asks about tasks, otherwise {}
- clarification: true if the input is unclear

Then write a short conversational "response" that confirms what you did and asks a follow-up question.

Reply with a single JSON object with the keys tasks, schedules, update_schedules, reminders, query, clarification, response.`,
		p.now().In(p.location).Format(isoLayout), tasks.String(), schedules.String(), req.Text)
}

// extractJSON trims markdown fences some models wrap JSON in
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// FallbackParser tries primary and falls back to the rule parser on error
type FallbackParser struct {
	primary  IntentParser
	fallback *RuleParser
	logger   zerolog.Logger
}

// NewFallbackParser returns a parser that uses primary when set
func NewFallbackParser(primary IntentParser, fallback *RuleParser, logger zerolog.Logger) *FallbackParser {
	return &FallbackParser{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("service", "intent_parser").Logger(),
	}
}

func (p *FallbackParser) Parse(ctx context.Context, req ParseRequest) (*ParsedInput, error) {
	parsed, _, err := p.ParseWithMode(ctx, req)
	return parsed, err
}

// ParseWithMode also reports which parser produced the result
func (p *FallbackParser) ParseWithMode(ctx context.Context, req ParseRequest) (*ParsedInput, string, error) {
	if p.primary != nil {
		parsed, err := p.primary.Parse(ctx, req)
		if err == nil {
			return parsed, models.ModeLLM, nil
		}
		p.logger.Warn().Err(err).Msg("LLM parsing failed, using rule-based parser")
	}
	parsed, err := p.fallback.Parse(ctx, req)
	return parsed, models.ModeRuleBased, err
}

// LLMEnabled reports whether an LLM parser is configured
func (p *FallbackParser) LLMEnabled() bool {
	return p.primary != nil
}
