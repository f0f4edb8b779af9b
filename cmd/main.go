package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ksred/plansmart/internal/app"
	"github.com/ksred/plansmart/internal/config"
	"github.com/ksred/plansmart/internal/database"
	"github.com/ksred/plansmart/internal/mcp"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/rs/zerolog"
)

// The stdio MCP server acts for the system user; stdout belongs to JSON-RPC
// so logs go to a file.
func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := loadConfiguration(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info().Str("version", mcp.Version).Msg("Starting PlanSmart MCP server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// GORM must stay quiet so nothing interferes with JSON-RPC
	db, err := app.Connect(ctx, cfg, "silent", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}()

	application, err := app.New(cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create services")
	}
	if err := application.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	mcpServer := mcp.NewServer(application.MCP, database.SystemUserID, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Info().Msg("Starting MCP server on stdio")
		if err := mcpServer.Serve(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErrChan:
		logger.Error().Err(err).Msg("MCP server error")
	}

	logger.Info().Msg("Starting graceful shutdown")
	cancel()
	application.Stop(10 * time.Second)
	logger.Info().Msg("Shutdown complete")
}

func loadConfiguration(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		cfg = config.NewDefault()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) zerolog.Logger {
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		logFile = filepath.Join(homeDir, ".config", "plansmart", "logs", "plansmart.log")
	}

	logConfig := utils.LoggerConfig{
		Level:      cfg.Server.LogLevel,
		Pretty:     cfg.Server.Debug,
		CallerInfo: cfg.Server.Debug,
		LogFile:    logFile,
	}

	utils.SetupGlobalLogger(logConfig)
	return utils.NewLogger(logConfig)
}
