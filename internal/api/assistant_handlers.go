package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/services"
)

const maxListLimit = 100

type ProcessInputRequest struct {
	Text string `json:"text" binding:"required" example:"remind me to call mum at 5pm"`
}

type ChatRequest struct {
	Message string `json:"message" binding:"required" example:"what should I do next?"`
}

// VoiceInputResponse pairs the transcript with what the assistant did with it
type VoiceInputResponse struct {
	Text   string                  `json:"text"`
	Result *services.ProcessResult `json:"result"`
}

// SuggestionResponse carries one suggestion from the assistant
type SuggestionResponse struct {
	Suggestion string `json:"suggestion"`
	Mode       string `json:"mode"`
}

// queryLimit reads ?limit=, falling back to def and capping at maxListLimit
func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, "limit must be a positive integer")
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

// processInputHandler godoc
// @Summary Process free text
// @Description Parse text into tasks, schedules, reminders and updates, apply them and reply
// @Tags assistant
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ProcessInputRequest true "User input"
// @Success 200 {object} services.ProcessResult
// @Failure 400 {object} ErrorResponse
// @Router /process_input [post]
func (s *Server) processInputHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req ProcessInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := s.svc.Assistant.ProcessInput(c.Request.Context(), user.ID, req.Text)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.requestLogger(c).Debug().
		Uint("user_id", user.ID).
		Str("mode", result.Mode).
		Int("tasks", len(result.Created.Tasks)).
		Int("schedules", len(result.Created.Schedules)).
		Int("reminders", len(result.Created.Reminders)).
		Msg("Processed input")
	c.JSON(http.StatusOK, result)
}

// voiceInputHandler godoc
// @Summary Process voice input
// @Description Transcribe an uploaded recording and process the text like /process_input
// @Tags assistant
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param audio formData file true "Recorded audio (mp3, m4a, wav, webm)"
// @Success 200 {object} VoiceInputResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /voice_input [post]
func (s *Server) voiceInputHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if s.svc.Speech == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "speech recognition requires an OpenAI API key"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxAudioSize+1<<20)
	header, err := c.FormFile("audio")
	if err != nil {
		badRequest(c, "audio file is required")
		return
	}
	if header.Size > services.MaxAudioSize {
		badRequest(c, "audio file is larger than 25MB")
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, "audio file could not be read")
		return
	}
	defer file.Close()

	text, err := s.svc.Speech.Transcribe(c.Request.Context(), header.Filename, file)
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.svc.Assistant.ProcessInput(c.Request.Context(), user.ID, text)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.requestLogger(c).Debug().
		Uint("user_id", user.ID).
		Int64("bytes", header.Size).
		Str("mode", result.Mode).
		Msg("Processed voice input")
	c.JSON(http.StatusOK, VoiceInputResponse{Text: text, Result: result})
}

// chatHandler godoc
// @Summary Chat
// @Description Answer a message using the user's tasks and schedules as context
// @Tags assistant
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChatRequest true "Message"
// @Success 200 {object} services.ChatReply
// @Failure 400 {object} ErrorResponse
// @Router /chat [post]
func (s *Server) chatHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	reply, err := s.svc.Conversation.Respond(c.Request.Context(), user.ID, req.Message)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// suggestionHandler godoc
// @Summary Suggestion
// @Description Ask the assistant what to do next
// @Tags assistant
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SuggestionResponse
// @Router /suggestion [get]
func (s *Server) suggestionHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	reply, err := s.svc.Conversation.Suggestion(c.Request.Context(), user.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuggestionResponse{Suggestion: reply.AIResponse, Mode: reply.Mode})
}

// historyHandler godoc
// @Summary Conversation history
// @Description Recent requests and replies, oldest first
// @Tags assistant
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of turns" default(10)
// @Success 200 {object} ListResponse
// @Failure 400 {object} ErrorResponse
// @Router /conversation/history [get]
func (s *Server) historyHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c, services.DefaultHistoryLimit)
	if !ok {
		return
	}

	history, err := s.svc.Log.History(c.Request.Context(), user.ID, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: history, Count: len(history)})
}

// overviewHandler godoc
// @Summary Today's overview
// @Description Pending reminders, today's schedules and the number of tasks completed today
// @Tags assistant
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.Overview
// @Router /overview [get]
func (s *Server) overviewHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	overview, err := s.svc.Assistant.Overview(c.Request.Context(), user.ID, s.now())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// activityHandler godoc
// @Summary Recent activity
// @Tags activity
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries" default(20)
// @Success 200 {object} ListResponse
// @Failure 400 {object} ErrorResponse
// @Router /activity [get]
func (s *Server) activityHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c, 20)
	if !ok {
		return
	}

	entries, err := s.svc.Activity.Recent(c.Request.Context(), user.ID, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: entries, Count: len(entries)})
}
