package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
)

// PiperProvider synthesizes offline with a local Piper binary and ONNX voice.
// https://github.com/rhasspy/piper
type PiperProvider struct {
	logger zerolog.Logger
	config config.PiperConfig
}

// NewPiperProvider creates a new Piper TTS provider
func NewPiperProvider(logger zerolog.Logger, cfg config.PiperConfig) *PiperProvider {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "piper"
	}
	if cfg.ModelsDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ModelsDir = filepath.Join(home, ".lipsync", "piper-voices")
	}

	return &PiperProvider{
		logger: logger.With().Str("provider", "piper-tts").Logger(),
		config: cfg,
	}
}

// Name returns the provider identifier
func (p *PiperProvider) Name() string {
	return "piper"
}

// IsAvailable checks that the binary resolves and the default voice exists
func (p *PiperProvider) IsAvailable() bool {
	if _, err := exec.LookPath(p.config.BinaryPath); err != nil {
		p.logger.Debug().Str("path", p.config.BinaryPath).Msg("Piper binary not found")
		return false
	}
	if _, err := os.Stat(p.modelPath(p.config.Voice)); err != nil {
		p.logger.Debug().Str("voice", p.config.Voice).Msg("Piper model not found")
		return false
	}
	return true
}

// Synthesize converts text to WAV audio using Piper
func (p *PiperProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	text := sanitizeText(req.Text)
	if text == "" {
		return nil, fmt.Errorf("piper: %w after sanitization", ErrEmptyText)
	}

	voice := req.VoiceID
	if voice == "" {
		voice = p.config.Voice
	}
	modelPath := p.modelPath(voice)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("piper: %w: model not found: %s", ErrProviderUnavailable, modelPath)
	}

	startTime := time.Now()

	tmpFile, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	// echo "text" | piper --model model.onnx -f output.wav
	cmd := exec.CommandContext(ctx, p.config.BinaryPath,
		"--model", modelPath,
		"-f", tmpPath,
	)
	cmd.Stdin = bytes.NewBufferString(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.logger.Error().
			Err(err).
			Str("stderr", stderr.String()).
			Msg("Piper TTS failed")
		return nil, fmt.Errorf("piper command failed: %w", err)
	}

	audioData, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("model", voice).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("Piper TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         audio.FormatWAV,
		SampleRate:     22050,
		ProcessingTime: processingTime,
		VoiceID:        voice,
		Provider:       p.Name(),
	}, nil
}

func (p *PiperProvider) modelPath(voice string) string {
	return filepath.Join(p.config.ModelsDir, voice+".onnx")
}

// Health checks if Piper TTS is available
func (p *PiperProvider) Health(ctx context.Context) error {
	if !p.IsAvailable() {
		return ErrProviderUnavailable
	}
	return nil
}
