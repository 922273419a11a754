// Package tts turns text into speech audio through a chain of synthesis
// providers chosen per language.
package tts

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/normanking/cortexlipsync/internal/audio"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrEmptyText           = errors.New("text is empty")
	ErrEmptyAudio          = errors.New("provider returned no audio")
	ErrTimeout             = errors.New("synthesis timeout")
)

// Provider is the interface all TTS providers must implement
type Provider interface {
	// Name returns the provider identifier used in the capability table
	Name() string

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// Health checks if the provider is configured and reachable
	Health(ctx context.Context) error
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`           // BCP-47 tag, e.g. hi-IN
	VoiceID  string  `json:"voice_id,omitempty"` // provider default when empty
	Speed    float64 `json:"speed,omitempty"`
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio          []byte        `json:"audio"`
	Format         audio.Format  `json:"format"`
	SampleRate     int           `json:"sample_rate"`
	ProcessingTime time.Duration `json:"processing_time"`
	VoiceID        string        `json:"voice_id"`
	Provider       string        `json:"provider"`
}

// normalizeLanguage gives the lookup key for a language tag.
func normalizeLanguage(lang string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
}

var (
	reBold      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reItalic    = regexp.MustCompile(`\*([^*]+)\*`)
	reCodeBlock = regexp.MustCompile("(?s)```[^`]*```")
	reCode      = regexp.MustCompile("`[^`]+`")
	reLink      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reBullet    = regexp.MustCompile(`(?m)^[\s]*[-*•]\s*`)
	reNumbered  = regexp.MustCompile(`(?m)^[\s]*\d+\.\s*`)
	reSpace     = regexp.MustCompile(`\s+`)
)

// sanitizeText strips markdown that would otherwise be read aloud.
func sanitizeText(text string) string {
	text = reCodeBlock.ReplaceAllString(text, "")
	text = reBold.ReplaceAllString(text, "$1")
	text = reItalic.ReplaceAllString(text, "$1")
	text = reCode.ReplaceAllString(text, "")
	text = reLink.ReplaceAllString(text, "$1")
	text = reBullet.ReplaceAllString(text, "")
	text = reNumbered.ReplaceAllString(text, "")
	text = reSpace.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\\", "")
	return strings.TrimSpace(text)
}

// splitText breaks text into pieces of at most max runes, preferring sentence
// ends and then word boundaries.
func splitText(text string, max int) []string {
	text = strings.TrimSpace(text)
	if max <= 0 || len([]rune(text)) <= max {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	var current []rune
	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			chunks = append(chunks, s)
		}
		current = current[:0]
	}

	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > max {
			flush()
			chunks = append(chunks, string(w[:max]))
			w = w[max:]
		}
		if len(current) > 0 && len(current)+1+len(w) > max {
			flush()
		}
		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, w...)

		if endsSentence(w) && len(current) > max*2/3 {
			flush()
		}
	}
	flush()
	return chunks
}

func endsSentence(w []rune) bool {
	if len(w) == 0 {
		return false
	}
	switch w[len(w)-1] {
	case '.', '!', '?', '।', '॥':
		return true
	}
	return false
}
