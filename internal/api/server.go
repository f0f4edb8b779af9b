package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/plansmart/internal/config"
	"github.com/ksred/plansmart/internal/database"
	"github.com/ksred/plansmart/internal/mcp"
	"github.com/ksred/plansmart/internal/scheduler"
	"github.com/ksred/plansmart/internal/services"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Services groups what the HTTP handlers call into
type Services struct {
	Tasks        *services.TaskService
	Schedules    *services.ScheduleService
	Reminders    *services.ReminderService
	Assistant    *services.Assistant
	Conversation *services.ConversationEngine
	Log          *services.ConversationLog
	Activity     *services.ActivityService
	// Speech is nil when no OpenAI key is configured
	Speech    *services.SpeechService
	Scheduler *scheduler.Scheduler
	MCP       *mcp.Handler
}

type Server struct {
	router      *gin.Engine
	config      *config.Config
	db          *database.Database
	svc         Services
	authService *AuthService
	logger      zerolog.Logger
	httpServer  *http.Server
	now         func() time.Time
}

var features = []string{
	"Task Management",
	"Schedule Management",
	"Reminders",
	"AI Conversations",
	"Smart Suggestions",
}

func NewServer(cfg *config.Config, db *database.Database, svc Services, logger zerolog.Logger) *Server {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.HTTP.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.AllowOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://localhost:5173", "http://127.0.0.1:3000", "http://127.0.0.1:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Requested-With", requestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Type", requestIDHeader}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      cfg,
		db:          db,
		svc:         svc,
		authService: NewAuthService(db, cfg.JWT, logger),
		logger:      logger,
		now:         time.Now,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.statusHandler)

		auth := v1.Group("/auth")
		{
			auth.POST("/register", s.registerHandler)
			auth.POST("/signup", s.registerHandler)
			auth.POST("/login", s.loginHandler)
			auth.POST("/guest", s.guestHandler)
			auth.POST("/logout", s.logoutHandler)
		}

		protected := v1.Group("")
		protected.Use(s.authMiddleware())
		{
			protected.GET("/auth/me", s.meHandler)

			keys := protected.Group("/keys")
			{
				keys.GET("", s.listAPIKeysHandler)
				keys.POST("", s.createAPIKeyHandler)
				keys.DELETE("/:id", s.deleteAPIKeyHandler)
			}

			tasks := protected.Group("/tasks")
			{
				tasks.GET("", s.listTasksHandler)
				tasks.POST("", s.createTaskHandler)
				tasks.PUT("/:id/done", s.markTaskDoneHandler)
			}

			schedules := protected.Group("/schedules")
			{
				schedules.GET("", s.listSchedulesHandler)
				schedules.POST("", s.createScheduleHandler)
				schedules.PUT("/:id", s.updateScheduleHandler)
				schedules.PUT("/:id/done", s.markScheduleDoneHandler)
			}

			reminders := protected.Group("/reminders")
			{
				reminders.GET("", s.listRemindersHandler)
				reminders.POST("", s.createReminderHandler)
				reminders.DELETE("/:id", s.cancelReminderHandler)
			}

			protected.POST("/process_input", s.processInputHandler)
			protected.POST("/voice_input", s.voiceInputHandler)
			protected.POST("/chat", s.chatHandler)
			protected.GET("/suggestion", s.suggestionHandler)
			protected.GET("/conversation/history", s.historyHandler)
			protected.GET("/overview", s.overviewHandler)
			protected.GET("/activity", s.activityHandler)

			protected.POST("/mcp", s.HandleMCP)
		}
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// LLM calls can take a while; leave room for retries
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   90 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestIDMiddleware tags every request with an id, reusing the caller's
// X-Request-ID when present
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func LoggerMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		statusCode := c.Writer.Status()
		event := logger.Info()
		switch {
		case statusCode >= http.StatusInternalServerError:
			event = logger.Error()
		case statusCode >= http.StatusBadRequest:
			event = logger.Warn()
		}

		event.
			Str("request_id", c.GetString(requestIDKey)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", time.Since(start)).
			Str("error", c.Errors.ByType(gin.ErrorTypePrivate).String()).
			Msg("HTTP request")
	}
}

// requestLogger returns the server logger tagged with the request id
func (s *Server) requestLogger(c *gin.Context) *zerolog.Logger {
	l := s.logger.With().Str("request_id", c.GetString(requestIDKey)).Logger()
	return &l
}

// @title PlanSmart API
// @version 1.1.0
// @description Personal assistant API for tasks, schedules, reminders and conversation
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8082
// @BasePath /api/v1

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// healthHandler godoc
// @Summary Health check
// @Description Check if the service is healthy
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()

	dbHealthy := true
	var dbError string
	if err := s.db.Health(ctx); err != nil {
		dbHealthy = false
		dbError = err.Error()
	}

	status := "healthy"
	if !dbHealthy {
		status = "unhealthy"
	}

	response := gin.H{
		"status":    status,
		"timestamp": s.now().UTC(),
		"database": gin.H{
			"healthy": dbHealthy,
			"error":   dbError,
		},
	}

	if !dbHealthy {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// StatusResponse describes the running assistant
type StatusResponse struct {
	Status     string   `json:"status" example:"running"`
	LLMEnabled bool     `json:"llm_enabled"`
	Mode       string   `json:"mode" example:"Rule-Based"`
	Version    string   `json:"version" example:"1.1.0"`
	Features   []string `json:"features"`
	// PendingJobs is a process-wide count across all users. It is the only
	// figure the public status endpoint exposes about user data.
	PendingJobs int `json:"pending_jobs"`
}

func (s *Server) features() []string {
	if s.svc.Speech == nil {
		return features
	}
	return append([]string{"Speech Recognition"}, features...)
}

// statusHandler godoc
// @Summary Assistant status
// @Description Report whether the assistant runs with an LLM and how many reminders are queued
// @Tags health
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /status [get]
func (s *Server) statusHandler(c *gin.Context) {
	llm := s.svc.Assistant.LLMEnabled()
	mode := "Rule-Based"
	if llm {
		mode = "LLM-Powered"
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status:      "running",
		LLMEnabled:  llm,
		Mode:        mode,
		Version:     mcp.Version,
		Features:    s.features(),
		PendingJobs: len(s.svc.Scheduler.Pending()),
	})
}
