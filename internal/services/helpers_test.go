package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ksred/plansmart/internal/config"
	"github.com/ksred/plansmart/internal/database"
	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := config.NewDefault().Database
	cfg.Driver = config.DriverSQLite
	cfg.Path = filepath.Join(t.TempDir(), "services.db")

	db := database.NewDatabase(cfg, "silent", zerolog.Nop())
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations(context.Background(), db.DB()))
	return db.DB()
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Password: "hashed"}
	require.NoError(t, db.Create(user).Error)
	return user
}

// testEnv wires the services the way the servers do
type testEnv struct {
	db        *gorm.DB
	scheduler *scheduler.Scheduler
	activity  *ActivityService
	reminders *ReminderService
	tasks     *TaskService
	schedules *ScheduleService
	log       *ConversationLog
	notifier  *recordingNotifier
	user      *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	logger := zerolog.Nop()
	sched := scheduler.New(logger)
	sched.Start()
	t.Cleanup(func() { <-sched.Stop().Done() })

	notifier := &recordingNotifier{}
	activity := NewActivityService(db, logger)
	reminders := NewReminderService(db, sched, activity, logger, WithNotifier(notifier))
	tasks := NewTaskService(db, reminders, activity, logger)

	return &testEnv{
		db:        db,
		scheduler: sched,
		activity:  activity,
		reminders: reminders,
		tasks:     tasks,
		schedules: NewScheduleService(db, tasks, activity, logger),
		log:       NewConversationLog(db, logger),
		notifier:  notifier,
		user:      createTestUser(t, db, "moyo"),
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Reminder
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, r models.Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, r)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// stubChat replays canned completions and records requests
type stubChat struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []openai.ChatCompletionRequest
}

func (s *stubChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.requests)
	s.requests = append(s.requests, req)

	if call < len(s.errs) && s.errs[call] != nil {
		return openai.ChatCompletionResponse{}, s.errs[call]
	}
	content := ""
	if call < len(s.responses) {
		content = s.responses[call]
	} else if len(s.responses) > 0 {
		content = s.responses[len(s.responses)-1]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}, nil
}

func (s *stubChat) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

var errStubUnavailable = errors.New("service unavailable")

func newTestLLM(chat ChatCompleter) *LLMService {
	cfg := config.NewDefault().OpenAI
	cfg.APIKey = "test"
	cfg.MaxRetries = 2
	llm := NewLLMServiceWithClient(chat, cfg, zerolog.Nop())
	llm.baseBackoff = time.Millisecond
	return llm
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
