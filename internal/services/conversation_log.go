package services

import (
	"context"
	"strings"
	"time"

	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultHistoryLimit is the number of turns returned when no limit is given
const DefaultHistoryLimit = 10

// noResponse stands in for a request that never got a reply
const noResponse = "No response"

// HistoryEntry is one request and its reply
type HistoryEntry struct {
	RequestID uint      `json:"request_id"`
	Request   string    `json:"request"`
	Response  string    `json:"response"`
	Source    string    `json:"source"`
	Mode      string    `json:"mode,omitempty"`
	Intents   []string  `json:"intents,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationLog persists requests and responses per user
type ConversationLog struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewConversationLog(db *gorm.DB, logger zerolog.Logger) *ConversationLog {
	return &ConversationLog{
		db:     db,
		logger: logger.With().Str("service", "conversation_log").Logger(),
	}
}

// RecordRequest saves the raw user text
func (l *ConversationLog) RecordRequest(ctx context.Context, userID uint, text, source string) (*models.Request, error) {
	if source == "" {
		source = models.SourceProcessInput
	}
	req := &models.Request{
		UserID: userID,
		Text:   strings.TrimSpace(text),
		Source: source,
	}
	if err := l.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, utils.WrapDatabaseError("record request", err)
	}
	return req, nil
}

// RecordResponse saves the assistant's reply to a request
func (l *ConversationLog) RecordResponse(ctx context.Context, requestID uint, text, mode string, intents []string) (*models.Response, error) {
	resp := &models.Response{
		RequestID: requestID,
		Text:      text,
		Mode:      mode,
		Intents:   pq.StringArray(intents),
	}
	if err := l.db.WithContext(ctx).Create(resp).Error; err != nil {
		return nil, utils.WrapDatabaseError("record response", err)
	}
	return resp, nil
}

// History returns the user's last limit turns, oldest first
func (l *ConversationLog) History(ctx context.Context, userID uint, limit int) ([]HistoryEntry, error) {
	return l.history(ctx, userID, 0, limit)
}

// HistoryBefore is History restricted to requests older than requestID
func (l *ConversationLog) HistoryBefore(ctx context.Context, userID, requestID uint, limit int) ([]HistoryEntry, error) {
	return l.history(ctx, userID, requestID, limit)
}

func (l *ConversationLog) history(ctx context.Context, userID, beforeID uint, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := l.db.WithContext(ctx).Where("user_id = ?", userID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	var requests []models.Request
	err := query.
		Preload("Responses", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, utils.WrapDatabaseError("load conversation history", err)
	}

	entries := make([]HistoryEntry, 0, len(requests))
	for i := len(requests) - 1; i >= 0; i-- {
		req := requests[i]
		entry := HistoryEntry{
			RequestID: req.ID,
			Request:   req.Text,
			Response:  noResponse,
			Source:    req.Source,
			Timestamp: req.CreatedAt,
		}
		if len(req.Responses) > 0 {
			first := req.Responses[0]
			entry.Response = first.Text
			entry.Mode = first.Mode
			entry.Intents = []string(first.Intents)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
