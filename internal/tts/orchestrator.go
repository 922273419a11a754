package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/metrics"
	"github.com/normanking/cortexlipsync/internal/store"
)

// ErrSynthesis matches every *SynthesisError.
var ErrSynthesis = errors.New("speech synthesis failed")

// ProviderAttempt records one provider call made for a request.
type ProviderAttempt struct {
	Provider string
	Err      error
	Elapsed  time.Duration
}

// SynthesisError reports that every provider for a language failed.
type SynthesisError struct {
	Language string
	Attempts []ProviderAttempt
}

func (e *SynthesisError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("synthesis failed for %s: no providers", e.Language)
	}
	return fmt.Sprintf("synthesis failed for %s: %s", e.Language, strings.Join(parts, "; "))
}

// Unwrap exposes ErrSynthesis and every attempt error to errors.Is/As.
func (e *SynthesisError) Unwrap() []error {
	errs := []error{ErrSynthesis}
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// CapabilityTable maps a language to its ordered provider chain. It is
// built once and never changes.
type CapabilityTable struct {
	general    string
	specialist string
	restricted map[string]bool
	overrides  map[string][]string
}

// NewCapabilityTable builds the table from configuration.
func NewCapabilityTable(cfg config.TTSConfig) *CapabilityTable {
	t := &CapabilityTable{
		general:    cfg.General,
		specialist: cfg.Specialist,
		restricted: make(map[string]bool, len(cfg.Restricted)),
		overrides:  make(map[string][]string, len(cfg.Languages)),
	}
	for _, lang := range cfg.Restricted {
		t.restricted[normalizeLanguage(lang)] = true
	}
	for lang, chain := range cfg.Languages {
		if len(chain) > 0 {
			t.overrides[normalizeLanguage(lang)] = append([]string(nil), chain...)
		}
	}
	return t
}

// Chain returns the providers to try for lang, in order.
func (t *CapabilityTable) Chain(lang string) []string {
	key := normalizeLanguage(lang)
	if chain, ok := t.overrides[key]; ok {
		return append([]string(nil), chain...)
	}

	var chain []string
	add := func(name string) {
		if name == "" {
			return
		}
		for _, c := range chain {
			if c == name {
				return
			}
		}
		chain = append(chain, name)
	}

	if !t.restricted[key] {
		add(t.general)
	}
	add(t.specialist)
	return chain
}

// Request is one synthesis request.
type Request struct {
	UtteranceID string // generated when empty
	Text        string
	Language    string
	VoiceID     string
}

// Result is the audio produced for a request.
type Result struct {
	UtteranceID string
	Audio       []byte
	Format      audio.Format
	Provider    string
	Attempts    []ProviderAttempt
	Elapsed     time.Duration
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Table           *CapabilityTable
	ProviderTimeout time.Duration
	DefaultLanguage string
	Store           store.ContentStore // optional
	Bus             *bus.EventBus      // optional
}

// Orchestrator picks providers by language and falls back along the chain
// until one returns audio.
type Orchestrator struct {
	providers map[string]Provider
	cfg       OrchestratorConfig
	logger    zerolog.Logger
	newID     func() string
}

// NewOrchestrator creates an orchestrator over the given providers.
func NewOrchestrator(providers []Provider, cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if cfg.Table == nil {
		cfg.Table = NewCapabilityTable(config.DefaultConfig().TTS)
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en-IN"
	}

	return &Orchestrator{
		providers: byName,
		cfg:       cfg,
		logger:    logger.With().Str("component", "tts-orchestrator").Logger(),
		newID:     func() string { return uuid.New().String() },
	}
}

// Chain returns the provider names that would be tried for lang.
func (o *Orchestrator) Chain(lang string) []string {
	return o.cfg.Table.Chain(lang)
}

// Synthesize turns text into audio, trying each provider for the language
// in order. Identical requests are not cached.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if req.Language == "" {
		req.Language = o.cfg.DefaultLanguage
	}
	if req.UtteranceID == "" {
		req.UtteranceID = o.newID()
	}

	start := time.Now()
	chain := o.cfg.Table.Chain(req.Language)
	attempts := make([]ProviderAttempt, 0, len(chain))

	for i, name := range chain {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, ProviderAttempt{Provider: name, Err: err})
			break
		}

		resp, elapsed, err := o.attempt(ctx, name, req)
		attempts = append(attempts, ProviderAttempt{Provider: name, Err: err, Elapsed: elapsed})

		if err != nil {
			metrics.SynthesisAttempts.WithLabelValues(name, req.Language, "failure").Inc()
			o.logger.Warn().
				Err(err).
				Str("provider", name).
				Str("language", req.Language).
				Str("utteranceId", req.UtteranceID).
				Bool("fallback", i < len(chain)-1).
				Msg("Provider failed")

			if i < len(chain)-1 {
				o.publish(bus.EventTypeSynthesisFallback, map[string]any{
					"utteranceId": req.UtteranceID,
					"failed":      name,
					"next":        chain[i+1],
					"error":       err.Error(),
				})
			}
			continue
		}

		metrics.SynthesisAttempts.WithLabelValues(name, req.Language, "success").Inc()

		result := &Result{
			UtteranceID: req.UtteranceID,
			Audio:       resp.Audio,
			Format:      resp.Format,
			Provider:    name,
			Attempts:    attempts,
			Elapsed:     time.Since(start),
		}
		o.persist(ctx, result)

		o.logger.Info().
			Str("provider", name).
			Str("language", req.Language).
			Str("utteranceId", req.UtteranceID).
			Int("attempts", len(attempts)).
			Int("audioBytes", len(resp.Audio)).
			Msg("Synthesis complete")
		return result, nil
	}

	synthErr := &SynthesisError{Language: req.Language, Attempts: attempts}
	metrics.SynthesisFailures.WithLabelValues(req.Language).Inc()
	o.logger.Error().Err(synthErr).Str("utteranceId", req.UtteranceID).Msg("All providers failed")
	o.publish(bus.EventTypeSynthesisFailed, map[string]any{
		"utteranceId": req.UtteranceID,
		"language":    req.Language,
		"error":       synthErr.Error(),
	})
	return nil, synthErr
}

// attempt calls one provider under the per-provider timeout. An empty
// payload counts as failure.
func (o *Orchestrator) attempt(ctx context.Context, name string, req Request) (*SynthesizeResponse, time.Duration, error) {
	p, ok := o.providers[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s not configured", ErrProviderUnavailable, name)
	}

	callCtx := ctx
	if o.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Synthesize(callCtx, &SynthesizeRequest{
		Text:     req.Text,
		Language: req.Language,
		VoiceID:  req.VoiceID,
	})
	elapsed := time.Since(start)
	metrics.SynthesisDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, elapsed, fmt.Errorf("%w after %s: %v", ErrTimeout, o.cfg.ProviderTimeout, err)
		}
		return nil, elapsed, err
	}
	if resp == nil || len(resp.Audio) == 0 {
		return nil, elapsed, ErrEmptyAudio
	}
	if resp.Format == audio.FormatUnknown {
		resp.Format = audio.DetectFormat(resp.Audio)
	}
	return resp, elapsed, nil
}

func (o *Orchestrator) persist(ctx context.Context, result *Result) {
	if o.cfg.Store == nil {
		return
	}
	err := o.cfg.Store.Put(ctx, result.UtteranceID, store.Clip{Data: result.Audio, Format: result.Format})
	if err != nil {
		metrics.StoreFailures.Inc()
		o.logger.Warn().Err(err).Str("utteranceId", result.UtteranceID).Msg("Failed to persist audio")
	}
}

func (o *Orchestrator) publish(t bus.EventType, data map[string]any) {
	if o.cfg.Bus != nil {
		o.cfg.Bus.Publish(bus.Event{Type: t, Data: data})
	}
}

// Health reports the health of every configured provider.
func (o *Orchestrator) Health(ctx context.Context) map[string]error {
	out := make(map[string]error, len(o.providers))
	for name, p := range o.providers {
		out[name] = p.Health(ctx)
	}
	return out
}

// Close releases providers that hold connections.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, p := range o.providers {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// NewProviders builds every provider named in the configuration's chains.
func NewProviders(cfg config.TTSConfig, logger zerolog.Logger) []Provider {
	wanted := map[string]bool{cfg.General: true, cfg.Specialist: true}
	for _, chain := range cfg.Languages {
		for _, name := range chain {
			wanted[name] = true
		}
	}

	var providers []Provider
	for name := range wanted {
		switch name {
		case "elevenlabs":
			providers = append(providers, NewElevenLabsProvider(logger, cfg.ElevenLabs))
		case "sarvam":
			providers = append(providers, NewSarvamProvider(logger, cfg.Sarvam))
		case "openai":
			providers = append(providers, NewOpenAIProvider(logger, cfg.OpenAI))
		case "yandex":
			providers = append(providers, NewYandexProvider(logger, cfg.Yandex))
		case "piper":
			providers = append(providers, NewPiperProvider(logger, cfg.Piper))
		case "":
		default:
			logger.Warn().Str("provider", name).Msg("Unknown TTS provider in configuration")
		}
	}
	return providers
}
