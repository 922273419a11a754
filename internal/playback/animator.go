package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/avatar3d"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/metrics"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

const (
	DefaultFPS = 60
	maxTickDt  = 0.1
)

// FrameSink receives a copy of every frame.
type FrameSink func(frame avatar3d.MorphFrame)

// PlaybackObserver is told when utterances start and leave playback. Calls
// arrive on the tick goroutine after the animator has updated the expression.
type PlaybackObserver interface {
	PlaybackStarted(u *utterance.Utterance)
	PlaybackEnded(u *utterance.Utterance, outcome string, queued int)
}

// Animator owns the morph frame and the tick loop. Each tick runs the
// synchronizer first and the expression blender second on the same frame.
type Animator struct {
	synchronizer *Synchronizer
	blender      *avatar3d.ExpressionBlender
	bus          *bus.EventBus
	logger       zerolog.Logger
	fps          int

	frame  avatar3d.MorphFrame
	paused atomic.Bool

	mu        sync.RWMutex
	latest    avatar3d.MorphFrame
	sinks     []FrameSink
	observers []PlaybackObserver
}

func NewAnimator(s *Synchronizer, blender *avatar3d.ExpressionBlender, fps int, eventBus *bus.EventBus, logger zerolog.Logger) *Animator {
	if fps <= 0 {
		fps = DefaultFPS
	}
	a := &Animator{
		synchronizer: s,
		blender:      blender,
		bus:          eventBus,
		logger:       logger.With().Str("component", "animator").Logger(),
		fps:          fps,
	}

	s.OnPlaybackStart(a.playbackStarted)
	s.OnPlaybackEnd(a.playbackEnded)
	return a
}

func (a *Animator) playbackStarted(u *utterance.Utterance) {
	if u.Expression != "" {
		a.setExpression(u.Expression)
	}
	for _, o := range a.playbackObservers() {
		o.PlaybackStarted(u)
	}
}

func (a *Animator) playbackEnded(u *utterance.Utterance, outcome string, queued int) {
	if queued == 0 {
		a.ResetExpression()
	}
	for _, o := range a.playbackObservers() {
		o.PlaybackEnded(u, outcome, queued)
	}
}

// Observe registers a playback observer.
func (a *Animator) Observe(o PlaybackObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

func (a *Animator) playbackObservers() []PlaybackObserver {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]PlaybackObserver(nil), a.observers...)
}

// SetExpression switches the blender's target profile.
func (a *Animator) SetExpression(name string) string {
	return a.setExpression(name)
}

// ResetExpression returns the blender to the default profile and restarts
// the blink schedule.
func (a *Animator) ResetExpression() string {
	a.blender.Reset()
	name := a.blender.Expression()
	a.publishExpression(name)
	return name
}

func (a *Animator) setExpression(name string) string {
	resolved := a.blender.SetExpression(name)
	if resolved != name {
		a.logger.Debug().Str("requested", name).Str("resolved", resolved).Msg("Expression resolved")
	}
	a.publishExpression(resolved)
	return resolved
}

func (a *Animator) publishExpression(name string) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(bus.Event{
		Type: bus.EventTypeExpressionChanged,
		Data: map[string]any{"expression": name},
	})
}

// OnFrame registers a sink. Sinks run on the tick goroutine and must not
// block.
func (a *Animator) OnFrame(sink FrameSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, sink)
}

// Frame returns a copy of the latest frame.
func (a *Animator) Frame() avatar3d.MorphFrame {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// FPS returns the tick rate.
func (a *Animator) FPS() int {
	return a.fps
}

// Step runs one tick of dt seconds. dt is clamped to 100ms so a stalled
// loop does not jump the animation.
func (a *Animator) Step(dt float64) {
	if dt > maxTickDt {
		dt = maxTickDt
	}
	if dt < 0 {
		dt = 0
	}

	a.synchronizer.Tick(dt, &a.frame)
	a.blender.Tick(dt, &a.frame)
	metrics.FrameTicks.Inc()

	frame := a.frame
	a.mu.Lock()
	a.latest = frame
	sinks := a.sinks
	a.mu.Unlock()

	for _, sink := range sinks {
		sink(frame)
	}
}

// Run ticks until ctx is done.
func (a *Animator) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(a.fps))
	defer ticker.Stop()

	a.logger.Info().Int("fps", a.fps).Msg("Animation loop started")
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Animation loop stopped")
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if a.paused.Load() {
				continue
			}
			a.Step(dt)
		}
	}
}

// Pause freezes audio, visemes, expression and blink together.
func (a *Animator) Pause() {
	a.paused.Store(true)
	a.synchronizer.Pause()
}

func (a *Animator) Resume() {
	a.synchronizer.Resume()
	a.paused.Store(false)
}

func (a *Animator) Paused() bool {
	return a.paused.Load()
}
