package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/config"
)

const (
	SarvamAPIEndpoint = "https://api.sarvam.ai"
	defaultSarvamSTT  = "saarika:v2.5"
)

// SarvamProvider transcribes Indian languages with Sarvam's saarika models.
type SarvamProvider struct {
	logger zerolog.Logger
	config config.SarvamConfig
	client *http.Client
}

// NewSarvamProvider creates the provider; it reports unavailable without an API key.
func NewSarvamProvider(logger zerolog.Logger, cfg config.SarvamConfig) *SarvamProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SarvamAPIEndpoint
	}
	if cfg.STTModel == "" {
		cfg.STTModel = defaultSarvamSTT
	}
	return &SarvamProvider{
		logger: logger.With().Str("provider", "sarvam-stt").Logger(),
		config: cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Name returns the provider identifier
func (p *SarvamProvider) Name() string {
	return "sarvam"
}

type sarvamSTTResponse struct {
	Transcript   string `json:"transcript"`
	LanguageCode string `json:"language_code"`
}

// Transcribe uploads the audio as multipart form data.
func (p *SarvamProvider) Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("sarvam: %w: API key not set", ErrProviderUnavailable)
	}
	if len(req.Audio) == 0 {
		return nil, ErrAudioTooShort
	}

	startTime := time.Now()
	lang := req.Language
	if lang == "" {
		lang = "en-IN"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", uploadName(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model", p.config.STTModel); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.WriteField("language_code", lang); err != nil {
		return nil, fmt.Errorf("failed to write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/speech-to-text"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("api-subscription-key", p.config.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sarvam request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Sarvam STT error")
		return nil, fmt.Errorf("sarvam STT error (status %d): %s", resp.StatusCode, string(body))
	}

	var result sarvamSTTResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	text := strings.TrimSpace(result.Transcript)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	processingTime := time.Since(startTime)
	p.logger.Info().Str("language", lang).Int("chars", len(text)).Dur("time", processingTime).Msg("Transcription complete")

	if result.LanguageCode != "" {
		lang = result.LanguageCode
	}
	return &TranscribeResponse{
		Text:           text,
		Language:       lang,
		ProcessingTime: processingTime,
		Provider:       p.Name(),
	}, nil
}

// Health checks if the API key is configured
func (p *SarvamProvider) Health(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("sarvam: %w: API key not set", ErrProviderUnavailable)
	}
	return nil
}
