package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/config"
	"github.com/ksred/plansmart/internal/database"
	"github.com/ksred/plansmart/internal/mcp"
	"github.com/ksred/plansmart/internal/scheduler"
	"github.com/ksred/plansmart/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.NewDefault()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")
	cfg.JWT.Secret = "test-secret"
	cfg.Assistant.TimeZone = "UTC"

	db := database.NewDatabase(cfg.Database, "silent", zerolog.Nop())
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(context.Background(), db.DB()))

	logger := zerolog.Nop()
	sched := scheduler.New(logger)
	sched.Start()
	t.Cleanup(func() { <-sched.Stop().Done() })

	gdb := db.DB()
	activity := services.NewActivityService(gdb, logger)
	reminders := services.NewReminderService(gdb, sched, activity, logger)
	tasks := services.NewTaskService(gdb, reminders, activity, logger)
	schedules := services.NewScheduleService(gdb, tasks, activity, logger)
	log := services.NewConversationLog(gdb, logger)
	parser := services.NewFallbackParser(nil, services.NewRuleParser(time.UTC, nil), logger)
	assistant := services.NewAssistant(gdb, services.AssistantDeps{
		Tasks:     tasks,
		Schedules: schedules,
		Reminders: reminders,
		Log:       log,
		Parser:    parser,
		Activity:  activity,
	}, time.UTC, cfg.Assistant.HistoryLimit, logger)

	return NewServer(cfg, db, Services{
		Tasks:        tasks,
		Schedules:    schedules,
		Reminders:    reminders,
		Assistant:    assistant,
		Conversation: services.NewConversationEngine(gdb, nil, log, time.UTC, logger),
		Log:          log,
		Activity:     activity,
		Scheduler:    sched,
		MCP: mcp.NewHandler(mcp.Services{
			Assistant: assistant,
			Tasks:     tasks,
			Schedules: schedules,
			Reminders: reminders,
		}, logger),
	}, logger)
}

type requestOption func(*http.Request)

func withToken(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withAPIKey(key string) requestOption {
	return func(r *http.Request) { r.Header.Set("X-API-Key", key) }
}

func withCookie(c *http.Cookie) requestOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewBuffer(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// login registers username and returns a session token for it
func login(t *testing.T, s *Server, username string) string {
	t.Helper()

	w := doRequest(t, s, http.MethodPost, "/api/v1/auth/register", RegisterRequest{Username: username, Password: "Demo@123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doRequest(t, s, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: username, Password: "Demo@123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	decodeBody(t, w, &resp)
	return resp.Token
}

// listItems decodes a ListResponse and returns its items as maps
func listItems(t *testing.T, w *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp struct {
		Items []map[string]interface{} `json:"items"`
		Count int                      `json:"count"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Items, resp.Count)
	return resp.Items
}
