package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
)

// WhisperProvider implements STT using OpenAI's transcription endpoint
type WhisperProvider struct {
	logger zerolog.Logger
	config config.OpenAIConfig
	client *openai.Client
}

// NewWhisperProvider creates a new OpenAI Whisper provider
func NewWhisperProvider(logger zerolog.Logger, cfg config.OpenAIConfig) *WhisperProvider {
	if cfg.STTModel == "" {
		cfg.STTModel = openai.Whisper1
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &WhisperProvider{
		logger: logger.With().Str("provider", "whisper").Logger(),
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// Name returns the provider identifier
func (p *WhisperProvider) Name() string {
	return "whisper"
}

// Transcribe sends audio to Whisper. G.711 input is wrapped as WAV first.
func (p *WhisperProvider) Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("whisper: %w: API key not set", ErrProviderUnavailable)
	}
	if len(req.Audio) == 0 {
		return nil, ErrAudioTooShort
	}

	startTime := time.Now()

	data := req.Audio
	if req.Format == audio.FormatMuLaw || req.Format == audio.FormatALaw {
		wav, err := audio.ToWAV(req.Audio, req.Format)
		if err != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		data = wav
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.config.STTModel,
		FilePath: uploadName(req),
		Reader:   bytes.NewReader(data),
		Language: isoLanguage(req.Language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	processingTime := time.Since(startTime)
	p.logger.Info().Int("chars", len(text)).Dur("time", processingTime).Msg("Transcription complete")

	lang := req.Language
	if lang == "" {
		lang = resp.Language
	}
	return &TranscribeResponse{
		Text:           text,
		Language:       lang,
		ProcessingTime: processingTime,
		Provider:       p.Name(),
	}, nil
}

// Health checks if the API key is configured
func (p *WhisperProvider) Health(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("whisper: %w: API key not set", ErrProviderUnavailable)
	}
	return nil
}

// isoLanguage reduces a BCP-47 tag to the ISO-639-1 code Whisper expects.
func isoLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
