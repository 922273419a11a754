// Package pipeline turns text into queued, timeline-ready utterances.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/tts"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

// Synthesizer produces audio for a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// Extractor produces a mouth cue timeline for audio.
type Extractor interface {
	ExtractFormat(ctx context.Context, utteranceID string, data []byte, format audio.Format) (*utterance.Timeline, error)
}

// Request asks for one utterance.
type Request struct {
	Text       string
	Language   string
	Expression string
	VoiceID    string
}

// Config holds request defaults.
type Config struct {
	DefaultLanguage   string
	DefaultExpression string
}

// Pipeline runs synthesis then extraction and pushes the result into the
// queue. Sequence numbers are reserved before any work starts, so the queue
// releases utterances in request order even when later requests finish
// first. Failed requests give up their slot.
type Pipeline struct {
	synth     Synthesizer
	extractor Extractor
	queue     *utterance.Queue
	cfg       Config
	bus       *bus.EventBus
	logger    zerolog.Logger
}

func New(synth Synthesizer, extractor Extractor, queue *utterance.Queue, cfg Config, eventBus *bus.EventBus, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		synth:     synth,
		extractor: extractor,
		queue:     queue,
		cfg:       cfg,
		bus:       eventBus,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Speak runs a request to completion. The returned utterance is non-nil
// whenever a sequence was reserved, including on failure.
func (p *Pipeline) Speak(ctx context.Context, req Request) (*utterance.Utterance, error) {
	u, err := p.reserve(req)
	if err != nil {
		return nil, err
	}
	return u, p.run(ctx, u, req.VoiceID)
}

// SpeakAsync reserves the request's place in the queue immediately and
// runs the rest in the background. The channel yields one value.
func (p *Pipeline) SpeakAsync(ctx context.Context, req Request) (*utterance.Utterance, <-chan error) {
	done := make(chan error, 1)
	u, err := p.reserve(req)
	if err != nil {
		done <- err
		close(done)
		return nil, done
	}

	go func() {
		defer close(done)
		done <- p.run(ctx, u, req.VoiceID)
	}()
	return u, done
}

func (p *Pipeline) reserve(req Request) (*utterance.Utterance, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	lang := req.Language
	if lang == "" {
		lang = p.cfg.DefaultLanguage
	}

	u := utterance.New(uuid.NewString(), p.queue.Reserve(), text, lang)
	u.Expression = req.Expression
	if u.Expression == "" {
		u.Expression = p.cfg.DefaultExpression
	}

	p.publish(bus.EventTypeUtteranceRequested, map[string]any{
		"utteranceId": u.ID,
		"seq":         u.Seq,
		"language":    u.Language,
	})
	return u, nil
}

func (p *Pipeline) run(ctx context.Context, u *utterance.Utterance, voiceID string) error {
	log := p.logger.With().Str("utteranceId", u.ID).Uint64("seq", u.Seq).Logger()

	res, err := p.synth.Synthesize(ctx, tts.Request{
		UtteranceID: u.ID,
		Text:        u.Text,
		Language:    u.Language,
		VoiceID:     voiceID,
	})
	if err != nil {
		return p.fail(u, err)
	}
	if err := u.AttachAudio(res.Audio, string(res.Format), res.Provider); err != nil {
		return p.fail(u, err)
	}

	tl, err := p.extractor.ExtractFormat(ctx, u.ID, res.Audio, res.Format)
	if err != nil {
		p.publish(bus.EventTypeExtractionFailed, map[string]any{
			"utteranceId": u.ID,
			"error":       err.Error(),
		})
		return p.fail(u, err)
	}
	if err := u.AttachTimeline(tl); err != nil {
		return p.fail(u, err)
	}

	if err := p.queue.Push(u); err != nil {
		return p.fail(u, fmt.Errorf("enqueue: %w", err))
	}

	log.Info().
		Str("provider", u.Provider).
		Int("cues", tl.Len()).
		Float64("duration", tl.Duration()).
		Msg("Utterance queued")
	p.publish(bus.EventTypeUtteranceQueued, map[string]any{
		"utteranceId": u.ID,
		"seq":         u.Seq,
		"provider":    u.Provider,
		"expression":  u.Expression,
	})
	return nil
}

// fail marks u failed and releases its queue slot.
func (p *Pipeline) fail(u *utterance.Utterance, cause error) error {
	if err := u.Fail(cause); err != nil {
		p.logger.Warn().Err(err).Str("utteranceId", u.ID).Msg("Unexpected utterance status")
	}
	p.queue.Abandon(u.Seq)

	var synthErr *tts.SynthesisError
	if !errors.As(cause, &synthErr) {
		p.logger.Error().Err(cause).Str("utteranceId", u.ID).Msg("Utterance failed")
	}
	return cause
}

func (p *Pipeline) publish(t bus.EventType, data map[string]any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(bus.Event{Type: t, Data: data})
}
