package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ksred/plansmart/internal/config"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// MaxAudioSize is the largest upload the transcription API accepts
const MaxAudioSize = 25 << 20

// AudioTranscriber is the part of the OpenAI client used for speech.
// *openai.Client satisfies it.
type AudioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// SpeechService turns recorded audio into text with Whisper
type SpeechService struct {
	client AudioTranscriber
	config config.OpenAI
	logger zerolog.Logger
}

// NewSpeechService creates an OpenAI backed SpeechService
func NewSpeechService(cfg config.OpenAI, logger zerolog.Logger) (*SpeechService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return NewSpeechServiceWithClient(openai.NewClientWithConfig(clientConfig), cfg, logger), nil
}

func NewSpeechServiceWithClient(client AudioTranscriber, cfg config.OpenAI, logger zerolog.Logger) *SpeechService {
	return &SpeechService{
		client: client,
		config: cfg,
		logger: logger.With().Str("service", "speech").Logger(),
	}
}

// Transcribe returns the text spoken in audio. filename only tells the API
// the container format. The reader is consumed, so failures are not retried.
func (s *SpeechService) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if filename == "" {
		return "", utils.RequiredFieldError("audio")
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   audio,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusBadRequest {
			return "", utils.InvalidFieldError("audio", "could not be transcribed")
		}
		s.logger.Error().Err(err).Str("filename", filename).Msg("Transcription failed")
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", utils.InvalidFieldError("audio", "contains no recognisable speech")
	}
	s.logger.Debug().Int("chars", len(text)).Msg("Audio transcribed")
	return text, nil
}
