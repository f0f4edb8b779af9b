// Package app wires the database, scheduler and services together for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ksred/plansmart/internal/api"
	"github.com/ksred/plansmart/internal/config"
	"github.com/ksred/plansmart/internal/database"
	"github.com/ksred/plansmart/internal/database/migrations"
	"github.com/ksred/plansmart/internal/mcp"
	"github.com/ksred/plansmart/internal/scheduler"
	"github.com/ksred/plansmart/internal/services"
	"github.com/rs/zerolog"
)

// App holds the running services
type App struct {
	Config    *config.Config
	DB        *database.Database
	Scheduler *scheduler.Scheduler
	Location  *time.Location

	LLM          *services.LLMService
	Speech       *services.SpeechService
	Activity     *services.ActivityService
	Reminders    *services.ReminderService
	Tasks        *services.TaskService
	Schedules    *services.ScheduleService
	Log          *services.ConversationLog
	Conversation *services.ConversationEngine
	Assistant    *services.Assistant
	MCP          *mcp.Handler

	logger zerolog.Logger
}

// Connect opens the configured database and brings its schema up to date
func Connect(ctx context.Context, cfg *config.Config, sqlLogLevel string, logger zerolog.Logger) (*database.Database, error) {
	db := database.NewDatabase(cfg.Database, sqlLogLevel, logger)
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Health(healthCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	if err := database.RunMigrations(ctx, db.DB()); err != nil {
		_ = db.Close()
		return nil, err
	}

	runner := database.NewMigrationRunner(db.DB(), logger)
	runner.Register(migrations.GetMigrations()...)
	if err := runner.Run(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run versioned migrations: %w", err)
	}

	logger.Info().Str("driver", cfg.Database.Driver).Msg("Database ready")
	return db, nil
}

// New builds the services on top of db. The LLM and speech recognition are
// only used when an API key is configured.
func New(cfg *config.Config, db *database.Database, logger zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	a := &App{
		Config:    cfg,
		DB:        db,
		Location:  loc,
		Scheduler: scheduler.New(logger, scheduler.WithLocation(loc)),
		logger:    logger,
	}

	if cfg.LLMEnabled() {
		a.LLM, err = services.NewLLMService(cfg.OpenAI, logger)
		if err != nil {
			return nil, err
		}
		a.Speech, err = services.NewSpeechService(cfg.OpenAI, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("model", cfg.OpenAI.Model).Msg("LLM enabled")
	} else {
		logger.Warn().Msg("No OpenAI API key configured, running rule-based")
	}

	gdb := db.DB()
	a.Activity = services.NewActivityService(gdb, logger)
	a.Reminders = services.NewReminderService(gdb, a.Scheduler, a.Activity, logger)
	a.Tasks = services.NewTaskService(gdb, a.Reminders, a.Activity, logger)
	a.Schedules = services.NewScheduleService(gdb, a.Tasks, a.Activity, logger)
	a.Log = services.NewConversationLog(gdb, logger)
	a.Conversation = services.NewConversationEngine(gdb, a.LLM, a.Log, loc, logger)

	var primary services.IntentParser
	if a.LLM != nil {
		primary = services.NewLLMParser(a.LLM, loc, logger)
	}
	parser := services.NewFallbackParser(primary, services.NewRuleParser(loc, nil), logger)

	a.Assistant = services.NewAssistant(gdb, services.AssistantDeps{
		Tasks:     a.Tasks,
		Schedules: a.Schedules,
		Reminders: a.Reminders,
		Log:       a.Log,
		Parser:    parser,
		LLM:       a.LLM,
		Activity:  a.Activity,
	}, loc, cfg.Assistant.HistoryLimit, logger)

	a.MCP = mcp.NewHandler(mcp.Services{
		Assistant: a.Assistant,
		Tasks:     a.Tasks,
		Schedules: a.Schedules,
		Reminders: a.Reminders,
	}, logger)

	return a, nil
}

// Start runs the scheduler and re-registers pending reminders
func (a *App) Start(ctx context.Context) error {
	a.Scheduler.Start()
	if !a.Config.Scheduler.RestoreOnStart {
		return nil
	}
	if _, _, err := a.Reminders.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore reminders: %w", err)
	}
	return nil
}

// Stop halts the scheduler, waiting up to timeout for running reminders
func (a *App) Stop(timeout time.Duration) {
	select {
	case <-a.Scheduler.Stop().Done():
	case <-time.After(timeout):
		a.logger.Warn().Msg("Timed out waiting for running reminders")
	}
}

// APIServices returns the services the HTTP server needs
func (a *App) APIServices() api.Services {
	return api.Services{
		Tasks:        a.Tasks,
		Schedules:    a.Schedules,
		Reminders:    a.Reminders,
		Assistant:    a.Assistant,
		Conversation: a.Conversation,
		Log:          a.Log,
		Activity:     a.Activity,
		Speech:       a.Speech,
		Scheduler:    a.Scheduler,
		MCP:          a.MCP,
	}
}
