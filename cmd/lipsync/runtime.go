package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/avatar3d"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/lipsync"
	"github.com/normanking/cortexlipsync/internal/logging"
	"github.com/normanking/cortexlipsync/internal/metrics"
	"github.com/normanking/cortexlipsync/internal/pipeline"
	"github.com/normanking/cortexlipsync/internal/playback"
	"github.com/normanking/cortexlipsync/internal/playback/device"
	"github.com/normanking/cortexlipsync/internal/store"
	"github.com/normanking/cortexlipsync/internal/stt"
	"github.com/normanking/cortexlipsync/internal/tts"
	"github.com/normanking/cortexlipsync/internal/utterance"
	"github.com/normanking/cortexlipsync/internal/voice"
)

// runtime is the fully wired service.
type runtime struct {
	cfg    *config.Config
	logs   *logging.Logger
	logger zerolog.Logger

	bus          *bus.EventBus
	store        store.ContentStore
	orchestrator *tts.Orchestrator
	stt          stt.Provider
	extractor    *lipsync.Extractor
	queue        *utterance.Queue
	pipeline     *pipeline.Pipeline
	synchronizer *playback.Synchronizer
	blender      *avatar3d.ExpressionBlender
	animator     *playback.Animator
	session      *voice.Session
	assistant    *voice.Assistant
	layout       avatar3d.Layout

	closers []func() error
}

func newRuntime(cfg *config.Config, logs *logging.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:    cfg,
		logs:   logs,
		logger: logs.Component("runtime"),
		bus:    bus.NewEventBus(),
	}
	base := logs.Zerolog()

	contentStore, err := store.New(cfg.Store)
	if err != nil {
		rt.logger.Warn().Err(err).Str("backend", cfg.Store.Backend).Msg("Audio store disabled")
	} else {
		rt.store = contentStore
		rt.closers = append(rt.closers, contentStore.Close)
	}

	rt.orchestrator = tts.NewOrchestrator(tts.NewProviders(cfg.TTS, base), tts.OrchestratorConfig{
		Table:           tts.NewCapabilityTable(cfg.TTS),
		ProviderTimeout: cfg.TTS.ProviderTimeout,
		DefaultLanguage: cfg.TTS.DefaultLanguage,
		Store:           rt.store,
		Bus:             rt.bus,
	}, base)
	rt.closers = append(rt.closers, rt.orchestrator.Close)

	if p, err := stt.NewProvider(cfg, base); err != nil {
		rt.logger.Warn().Err(err).Msg("Speech-to-text disabled")
	} else {
		rt.stt = p
	}

	rt.extractor = lipsync.NewExtractor(cfg.Lipsync, base)

	rt.queue = utterance.NewQueue()
	rt.queue.OnDepthChange(func(ready, parked int) {
		metrics.QueueDepth.Set(float64(ready))
		metrics.QueueParked.Set(float64(parked))
	})

	rt.pipeline = pipeline.New(rt.orchestrator, rt.extractor, rt.queue, pipeline.Config{
		DefaultLanguage:   cfg.TTS.DefaultLanguage,
		DefaultExpression: cfg.Animation.DefaultExpression,
	}, rt.bus, base)

	factory, err := rt.handleFactory(base)
	if err != nil {
		rt.Close()
		return nil, err
	}

	smoother := avatar3d.NewSmoother(cfg.Animation.ReferenceFPS, cfg.Animation.FixedStep)
	rt.synchronizer = playback.NewSynchronizer(rt.queue, factory, playback.SynchronizerConfig{
		Smoother:   smoother,
		VisemeRate: float32(cfg.Animation.VisemeRate),
	}, rt.bus, base)

	blink := avatar3d.NewBlinkScheduler(avatar3d.BlinkConfig{
		MinInterval: cfg.Animation.BlinkMinInterval,
		MaxInterval: cfg.Animation.BlinkMaxInterval,
		Hold:        cfg.Animation.BlinkHold,
	}, nil)
	rt.blender = avatar3d.NewExpressionBlender(avatar3d.BlenderConfig{
		Smoother:          smoother,
		ExpressionRate:    float32(cfg.Animation.ExpressionRate),
		BlinkRate:         float32(cfg.Animation.BlinkRate),
		DefaultExpression: cfg.Animation.DefaultExpression,
	}, blink)
	rt.animator = playback.NewAnimator(rt.synchronizer, rt.blender, cfg.Animation.FPS, rt.bus, base)

	rt.session = voice.NewSession(rt.animator, rt.bus, base)
	rt.animator.Observe(rt.session)
	rt.assistant = voice.NewAssistant(rt.session, rt.stt, stt.NewFilter(nil), rt.pipeline, cfg.STT.Language, rt.bus, base)

	rt.layout = avatar3d.ChannelLayout{}
	if path := cfg.Animation.ModelPath; path != "" {
		mapping, err := avatar3d.LoadMorphMapping(path)
		if err != nil {
			rt.logger.Warn().Err(err).Str("model", path).Msg("Using channel layout")
		} else {
			rt.layout = mapping
			rt.logger.Info().Str("model", path).Int("targets", mapping.Len()).Bool("visemes", mapping.HasVisemes()).Msg("Morph mapping loaded")
		}
	}

	return rt, nil
}

func (rt *runtime) handleFactory(logger zerolog.Logger) (playback.HandleFactory, error) {
	switch rt.cfg.Playback.Device {
	case "", "clock":
		return playback.NewClockFactory(playback.SystemClock{}), nil
	case "portaudio":
		if err := device.Initialize(); err != nil {
			return nil, fmt.Errorf("portaudio: %w", err)
		}
		rt.closers = append(rt.closers, device.Terminate)
		return device.NewFactory(rt.cfg.Playback.FramesPerBuffer, logger), nil
	}
	return nil, fmt.Errorf("unknown playback device %q", rt.cfg.Playback.Device)
}

// health reports every provider the runtime depends on.
func (rt *runtime) health(ctx context.Context) map[string]error {
	out := rt.orchestrator.Health(ctx)
	if rt.stt != nil {
		out["stt:"+rt.stt.Name()] = rt.stt.Health(ctx)
	}
	return out
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
