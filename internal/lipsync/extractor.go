// Package lipsync produces mouth-cue timelines from speech audio by running
// the Rhubarb Lip Sync forced aligner.
package lipsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/metrics"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

const defaultTimeout = 30 * time.Second

// Extractor turns audio into a validated timeline. Each call works in its
// own temporary directory, so concurrent calls do not interfere.
type Extractor struct {
	cfg    config.LipsyncConfig
	logger zerolog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(cfg config.LipsyncConfig, logger zerolog.Logger) *Extractor {
	if cfg.RhubarbPath == "" {
		cfg.RhubarbPath = "rhubarb"
	}
	if cfg.Recognizer == "" {
		cfg.Recognizer = "phonetic"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Extractor{
		cfg:    cfg,
		logger: logger.With().Str("component", "lipsync").Logger(),
	}
}

// Extract sniffs the audio format and extracts the timeline.
func (e *Extractor) Extract(ctx context.Context, utteranceID string, data []byte) (*utterance.Timeline, error) {
	return e.ExtractFormat(ctx, utteranceID, data, audio.FormatUnknown)
}

// ExtractFormat transcodes data to WAV, aligns it and validates the cues.
// Intermediate files are removed before returning.
func (e *Extractor) ExtractFormat(ctx context.Context, utteranceID string, data []byte, format audio.Format) (*utterance.Timeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	log := e.logger.With().Str("utteranceId", utteranceID).Logger()

	dir, err := os.MkdirTemp(e.cfg.WorkDir, "lipsync-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	tl, err := e.run(ctx, dir, data, format)

	if err != nil && e.cfg.KeepFailed {
		log.Warn().Str("dir", dir).Msg("Keeping work dir of failed extraction")
	} else if rmErr := os.RemoveAll(dir); rmErr != nil {
		log.Warn().Err(rmErr).Str("dir", dir).Msg("Failed to remove work dir")
	}

	elapsed := time.Since(start)
	metrics.ExtractionDuration.Observe(elapsed.Seconds())

	if err != nil {
		metrics.ExtractionFailures.WithLabelValues(failureKind(err)).Inc()
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Extraction failed")
		return nil, err
	}

	log.Info().
		Int("cues", tl.Len()).
		Float64("duration", tl.Duration()).
		Dur("elapsed", elapsed).
		Msg("Lip-sync timeline extracted")
	return tl, nil
}

func (e *Extractor) run(ctx context.Context, dir string, data []byte, format audio.Format) (*utterance.Timeline, error) {
	wavPath := filepath.Join(dir, "message.wav")
	if err := e.transcode(ctx, dir, data, format, wavPath); err != nil {
		return nil, err
	}

	jsonPath := filepath.Join(dir, "message.json")
	if err := e.align(ctx, wavPath, jsonPath); err != nil {
		return nil, err
	}

	return readTimeline(jsonPath)
}

// transcode writes 16-bit PCM WAV to wavPath. Formats the audio package can
// decode are converted in process; anything else goes through ffmpeg.
func (e *Extractor) transcode(ctx context.Context, dir string, data []byte, format audio.Format, wavPath string) error {
	if len(data) == 0 {
		return &TranscodeError{Format: format, Err: audio.ErrEmptyAudio}
	}
	if format == audio.FormatUnknown {
		format = audio.DetectFormat(data)
	}

	wav, nativeErr := audio.ToWAV(data, format)
	if nativeErr == nil {
		if err := os.WriteFile(wavPath, wav, 0644); err != nil {
			return &TranscodeError{Format: format, Err: err}
		}
		return nil
	}

	if e.cfg.FFmpegPath == "" {
		return &TranscodeError{Format: format, Err: nativeErr}
	}
	if err := e.ffmpeg(ctx, dir, data, format, wavPath); err != nil {
		return &TranscodeError{Format: format, Err: errors.Join(nativeErr, err)}
	}
	return nil
}

func (e *Extractor) ffmpeg(ctx context.Context, dir string, data []byte, format audio.Format, wavPath string) error {
	ext := string(format)
	if ext == "" {
		ext = "bin"
	}
	inPath := filepath.Join(dir, "message."+ext)
	if err := os.WriteFile(inPath, data, 0644); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	// ffmpeg -y -i message.mp3 message.wav
	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, "-y", "-i", inPath, "-ac", "1", "-acodec", "pcm_s16le", wavPath)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	if _, err := os.Stat(wavPath); err != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return nil
}

// align runs rhubarb -f json -o <json> <wav> -r <recognizer> under the timeout.
func (e *Extractor) align(ctx context.Context, wavPath, jsonPath string) error {
	alignCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(alignCtx, e.cfg.RhubarbPath,
		"-f", "json",
		"-o", jsonPath,
		wavPath,
		"-r", e.cfg.Recognizer,
	)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(alignCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", ErrAlignmentTimeout, e.cfg.Timeout)
	}
	if ctx.Err() != nil {
		return &AlignmentError{ExitCode: -1, Err: ctx.Err()}
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &AlignmentError{ExitCode: exitCode, Stderr: lastLine(stderr.String()), Err: err}
}

// readTimeline parses Rhubarb's JSON output. The metadata block is ignored.
func readTimeline(path string) (*utterance.Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &AlignmentError{Err: fmt.Errorf("read output: %w", err)}
	}
	return ParseTimeline(data)
}

// ParseTimeline decodes Rhubarb JSON and enforces timeline invariants.
func ParseTimeline(data []byte) (*utterance.Timeline, error) {
	var out struct {
		MouthCues *[]utterance.Cue `json:"mouthCues"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &AlignmentError{Err: fmt.Errorf("parse output: %w", err)}
	}
	if out.MouthCues == nil {
		return nil, &AlignmentError{Err: errors.New("output has no mouthCues")}
	}

	tl, err := utterance.NewTimeline(*out.MouthCues)
	if err != nil {
		var cueErr *utterance.CueError
		if errors.As(err, &cueErr) {
			return nil, &TimelineInvariantViolation{Index: cueErr.Index, Reason: cueErr.Reason}
		}
		return nil, &AlignmentError{Err: err}
	}
	return tl, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
