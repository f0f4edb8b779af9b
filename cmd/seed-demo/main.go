package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ksred/plansmart/internal/app"
	"github.com/ksred/plansmart/internal/config"
	"github.com/ksred/plansmart/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg := config.LoadConfigOrDefault(configPath)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timezone: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(utils.LoggerConfig{Level: cfg.Server.LogLevel, Pretty: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := app.Connect(ctx, cfg, "silent", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare database")
	}
	defer db.Close()

	result, err := app.SeedDemo(ctx, db, time.Now().In(loc))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed demo data")
	}

	logger.Info().
		Uint("user_id", result.User.ID).
		Bool("new_user", result.Created).
		Int("tasks", result.Tasks).
		Int("schedules", result.Schedules).
		Msg("Demo data created")

	fmt.Printf("\nLogin with %s / %s\n", app.DemoUsername, app.DemoPassword)
	fmt.Println("Try: 'What tasks do I have?', 'Show my schedule for today', 'Schedule meeting at 14:00'")
}
