package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ksred/plansmart/internal/config"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// ChatCompleter is the part of the OpenAI client the assistant uses.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CompletionOptions tweaks a single completion call
type CompletionOptions struct {
	JSON      bool
	MaxTokens int
}

// LLMService wraps chat completions with timeouts and retries
type LLMService struct {
	client      ChatCompleter
	config      config.OpenAI
	logger      zerolog.Logger
	baseBackoff time.Duration
}

// NewLLMService creates an OpenAI backed LLMService
func NewLLMService(cfg config.OpenAI, logger zerolog.Logger) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return NewLLMServiceWithClient(openai.NewClientWithConfig(clientConfig), cfg, logger), nil
}

// NewLLMServiceWithClient creates an LLMService on top of any ChatCompleter
func NewLLMServiceWithClient(client ChatCompleter, cfg config.OpenAI, logger zerolog.Logger) *LLMService {
	return &LLMService{
		client:      client,
		config:      cfg,
		logger:      logger.With().Str("service", "llm").Logger(),
		baseBackoff: time.Second,
	}
}

// Model returns the configured model name
func (s *LLMService) Model() string {
	return s.config.Model
}

// Complete sends messages and returns the first choice's content
func (s *LLMService) Complete(ctx context.Context, messages []openai.ChatCompletionMessage, opts CompletionOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.config.MaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: s.config.Temperature,
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	maxRetries := s.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s...
			backoff := s.baseBackoff * time.Duration(1<<uint(attempt-1))
			s.logger.Debug().Int("attempt", attempt+1).Dur("backoff", backoff).Msg("Retrying after backoff")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		start := time.Now()
		content, err := s.completeOnce(ctx, req)
		if err == nil {
			s.logger.Debug().
				Int("attempts", attempt+1).
				Dur("duration", time.Since(start)).
				Msg("Chat completion succeeded")
			return content, nil
		}

		lastErr = err
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Chat completion failed")
		if !isRetryableLLMError(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (s *LLMService) completeOnce(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion")
	}
	return content, nil
}

// isRetryableLLMError retries everything except cancellation and client
// errors other than rate limiting
func isRetryableLLMError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code == 0 || code >= 500
}

func systemMessage(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: content}
}

func userMessage(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: content}
}

func assistantMessage(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}
}
