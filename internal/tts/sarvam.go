package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
)

const (
	SarvamAPIEndpoint = "https://api.sarvam.ai"
	sarvamSampleRate  = 22050
)

// SarvamProvider synthesizes Indian languages through Sarvam's bulbul models.
// Long text is sent in chunks whose audio is joined with a short pause.
type SarvamProvider struct {
	logger   zerolog.Logger
	config   config.SarvamConfig
	speakers map[string]string
	client   *http.Client
}

// NewSarvamProvider creates the provider; it reports unavailable without an API key.
func NewSarvamProvider(logger zerolog.Logger, cfg config.SarvamConfig) *SarvamProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SarvamAPIEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "bulbul:v2"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 300
	}
	if cfg.EnglishChunkSize <= 0 {
		cfg.EnglishChunkSize = 500
	}
	if cfg.Pace <= 0 {
		cfg.Pace = 1.0
	}

	speakers := make(map[string]string, len(cfg.Speakers))
	for lang, speaker := range cfg.Speakers {
		speakers[normalizeLanguage(lang)] = speaker
	}

	return &SarvamProvider{
		logger:   logger.With().Str("provider", "sarvam-tts").Logger(),
		config:   cfg,
		speakers: speakers,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *SarvamProvider) Name() string {
	return "sarvam"
}

func (p *SarvamProvider) IsAvailable() bool {
	return p.config.APIKey != ""
}

func (p *SarvamProvider) chunkSize(lang string) int {
	if normalizeLanguage(lang) == "en-in" {
		return p.config.EnglishChunkSize
	}
	return p.config.ChunkSize
}

func (p *SarvamProvider) speaker(lang, voice string) string {
	if voice != "" {
		return voice
	}
	if s, ok := p.speakers[normalizeLanguage(lang)]; ok {
		return s
	}
	return "anushka"
}

type sarvamTTSRequest struct {
	Inputs              []string `json:"inputs"`
	TargetLanguageCode  string   `json:"target_language_code"`
	Speaker             string   `json:"speaker"`
	Pitch               float64  `json:"pitch"`
	Pace                float64  `json:"pace"`
	Loudness            float64  `json:"loudness"`
	SpeechSampleRate    int      `json:"speech_sample_rate"`
	EnablePreprocessing bool     `json:"enable_preprocessing"`
	Model               string   `json:"model"`
}

type sarvamTTSResponse struct {
	Audios []string `json:"audios"`
}

func (p *SarvamProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("sarvam: %w: API key not set", ErrProviderUnavailable)
	}

	startTime := time.Now()
	speaker := p.speaker(req.Language, req.VoiceID)
	pace := p.config.Pace
	if req.Speed > 0 {
		pace = req.Speed
	}

	text := p.translate(ctx, req.Text, req.Language)
	chunks := splitText(text, p.chunkSize(req.Language))
	var merged *audio.PCM
	var lastErr error

	for i, chunk := range chunks {
		pcm, err := p.synthesizeChunk(ctx, sarvamTTSRequest{
			Inputs:              []string{chunk},
			TargetLanguageCode:  req.Language,
			Speaker:             speaker,
			Pace:                pace,
			Loudness:            1.0,
			SpeechSampleRate:    sarvamSampleRate,
			EnablePreprocessing: true,
			Model:               p.config.Model,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A failed chunk is skipped; the utterance fails only if every chunk does.
			p.logger.Warn().Err(err).Int("chunk", i).Int("chunks", len(chunks)).Msg("Sarvam chunk failed")
			lastErr = err
			continue
		}

		if merged == nil {
			merged = &audio.PCM{SampleRate: pcm.SampleRate, Channels: pcm.Channels}
		} else if pcm.SampleRate != merged.SampleRate || pcm.Channels != merged.Channels {
			lastErr = fmt.Errorf("chunk %d: format %dHz/%dch differs from %dHz/%dch",
				i, pcm.SampleRate, pcm.Channels, merged.SampleRate, merged.Channels)
			p.logger.Warn().Err(lastErr).Msg("Sarvam chunk skipped")
			continue
		} else {
			merged.Data = append(merged.Data, merged.Silence(p.config.Silence)...)
		}
		merged.Data = append(merged.Data, pcm.Data...)
	}

	if merged == nil {
		if lastErr == nil {
			lastErr = ErrEmptyAudio
		}
		return nil, fmt.Errorf("sarvam: no chunk produced audio: %w", lastErr)
	}

	wav, err := audio.EncodeWAV(merged)
	if err != nil {
		return nil, fmt.Errorf("sarvam: %w", err)
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("speaker", speaker).
		Str("language", req.Language).
		Int("chunks", len(chunks)).
		Int("audioBytes", len(wav)).
		Dur("processingTime", processingTime).
		Msg("Sarvam TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          wav,
		Format:         audio.FormatWAV,
		SampleRate:     merged.SampleRate,
		ProcessingTime: processingTime,
		VoiceID:        speaker,
		Provider:       p.Name(),
	}, nil
}

type sarvamTranslateRequest struct {
	Input              string `json:"input"`
	SourceLanguageCode string `json:"source_language_code"`
	TargetLanguageCode string `json:"target_language_code"`
	SpeakerGender      string `json:"speaker_gender"`
	Mode               string `json:"mode"`
	Model              string `json:"model,omitempty"`
}

type sarvamTranslateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// translate converts text into target when a source language is configured
// and differs from it. Any failure keeps the original text.
func (p *SarvamProvider) translate(ctx context.Context, text, target string) string {
	source := p.config.SourceLanguage
	if source == "" || normalizeLanguage(source) == normalizeLanguage(target) {
		return text
	}

	translated, err := p.requestTranslation(ctx, sarvamTranslateRequest{
		Input:              text,
		SourceLanguageCode: source,
		TargetLanguageCode: target,
		SpeakerGender:      "Female",
		Mode:               "formal",
		Model:              p.config.TranslateModel,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("source", source).Str("target", target).Msg("Sarvam translation failed, using original text")
		return text
	}
	p.logger.Debug().Str("source", source).Str("target", target).Msg("Text translated")
	return translated
}

func (p *SarvamProvider) requestTranslation(ctx context.Context, body sarvamTranslateRequest) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/translate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-subscription-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Sarvam translate error %d: %s", resp.StatusCode, string(respBody))
	}

	var result sarvamTranslateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(result.TranslatedText) == "" {
		return "", errors.New("empty translation")
	}
	return result.TranslatedText, nil
}

func (p *SarvamProvider) synthesizeChunk(ctx context.Context, body sarvamTTSRequest) (*audio.PCM, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/text-to-speech"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-subscription-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Sarvam API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result sarvamTTSResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Audios) == 0 || result.Audios[0] == "" {
		return nil, ErrEmptyAudio
	}

	raw, err := base64.StdEncoding.DecodeString(result.Audios[0])
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	pcm, err := audio.ParseWAV(raw)
	if err != nil {
		if errors.Is(err, audio.ErrEmptyAudio) {
			return nil, ErrEmptyAudio
		}
		return nil, fmt.Errorf("parse audio: %w", err)
	}
	return pcm, nil
}

func (p *SarvamProvider) Health(ctx context.Context) error {
	if !p.IsAvailable() {
		return ErrProviderUnavailable
	}
	return nil
}
