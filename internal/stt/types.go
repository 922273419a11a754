// Package stt transcribes recorded speech so it can be fed back into the
// utterance pipeline.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("STT provider unavailable")
	ErrAudioTooShort       = errors.New("audio too short for transcription")
	ErrEmptyTranscript     = errors.New("no transcript in response")
)

// Provider is the interface all STT providers must implement
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// Transcribe converts audio to text
	Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error)

	// Health checks if the provider is configured
	Health(ctx context.Context) error
}

// TranscribeRequest represents a transcription request
type TranscribeRequest struct {
	Audio    []byte       `json:"-"`
	Format   audio.Format `json:"format,omitempty"`   // sniffed when empty
	Filename string       `json:"filename,omitempty"` // upload name, if any
	Language string       `json:"language,omitempty"` // BCP-47 tag, e.g. hi-IN
}

// TranscribeResponse represents a transcription result
type TranscribeResponse struct {
	Text           string        `json:"text"`
	Language       string        `json:"language"`
	ProcessingTime time.Duration `json:"processing_time"`
	Provider       string        `json:"provider"`
}

// NewProvider builds the provider named in cfg.STT.Provider.
func NewProvider(cfg *config.Config, logger zerolog.Logger) (Provider, error) {
	switch strings.ToLower(cfg.STT.Provider) {
	case "", "openai", "whisper":
		return NewWhisperProvider(logger, cfg.TTS.OpenAI), nil
	case "sarvam":
		return NewSarvamProvider(logger, cfg.TTS.Sarvam), nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderUnavailable, cfg.STT.Provider)
}

// uploadName picks a file name whose extension matches the audio.
func uploadName(req *TranscribeRequest) string {
	if req.Filename != "" {
		return req.Filename
	}
	format := req.Format
	if format == audio.FormatUnknown {
		format = audio.DetectFormat(req.Audio)
	}
	if format == audio.FormatUnknown || format == audio.FormatMuLaw || format == audio.FormatALaw {
		return "audio.wav"
	}
	return "audio." + string(format)
}
