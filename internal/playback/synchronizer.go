package playback

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/avatar3d"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/metrics"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

// SynchronizerConfig tunes viseme smoothing.
type SynchronizerConfig struct {
	Smoother   avatar3d.Smoother
	VisemeRate float32
}

// Synchronizer plays the queue head and drives viseme channels from its
// audio clock. Tick runs on the animation goroutine; Stop, Pause, Resume and
// Snapshot may be called from any goroutine.
type Synchronizer struct {
	mu sync.Mutex

	queue   *utterance.Queue
	factory HandleFactory
	cfg     SynchronizerConfig
	bus     *bus.EventBus
	logger  zerolog.Logger

	state     State
	current   *utterance.Utterance
	handle    AudioHandle
	clockTime float64
	activeCue int
	paused    bool

	onStart func(*utterance.Utterance)
	onEnd   func(u *utterance.Utterance, outcome string, queued int)
}

func NewSynchronizer(queue *utterance.Queue, factory HandleFactory, cfg SynchronizerConfig, eventBus *bus.EventBus, logger zerolog.Logger) *Synchronizer {
	if cfg.VisemeRate <= 0 {
		cfg.VisemeRate = avatar3d.VisemeRate
	}
	return &Synchronizer{
		queue:     queue,
		factory:   factory,
		cfg:       cfg,
		bus:       eventBus,
		logger:    logger.With().Str("component", "synchronizer").Logger(),
		activeCue: -1,
	}
}

// OnPlaybackStart registers a callback run when an utterance starts playing.
// Callbacks run on the tick goroutine after the synchronizer lock is released.
func (s *Synchronizer) OnPlaybackStart(fn func(*utterance.Utterance)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStart = fn
}

// OnPlaybackEnd registers a callback run when an utterance leaves playback.
// Outcome is done, stopped or failed; queued is what remains in the queue.
func (s *Synchronizer) OnPlaybackEnd(fn func(u *utterance.Utterance, outcome string, queued int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnd = fn
}

// Tick advances playback by one frame and writes viseme channels into frame.
func (s *Synchronizer) Tick(dt float64, frame *avatar3d.MorphFrame) {
	var notify []func()

	s.mu.Lock()
	if s.state == StateIdle {
		notify = append(notify, s.load()...)
	}
	if s.state == StateLoading {
		switch {
		case s.handle.Started():
			notify = append(notify, s.begin()...)
		case s.handle.Finished():
			u := s.current
			s.handle.Stop()
			s.clear()
			s.setState(StateIdle)
			notify = append(notify, s.failStart(u, ErrNeverStarted)...)
		}
	}

	active := avatar3d.NoTarget
	if s.state == StatePlaying {
		if s.handle.Finished() {
			notify = append(notify, s.end()...)
		} else {
			active = s.sample()
		}
	}
	alpha := s.cfg.Smoother.Alpha(s.cfg.VisemeRate, dt)
	s.mu.Unlock()

	avatar3d.DriveVisemes(frame, active, alpha)

	for _, fn := range notify {
		fn()
	}
}

// load starts the queue head. It leaves the synchronizer Loading, or Idle if
// the queue is empty or the handle cannot be built.
func (s *Synchronizer) load() []func() {
	u := s.queue.Peek()
	if u == nil {
		return nil
	}

	h, err := s.factory(u)
	if err == nil {
		err = h.Play()
		if err != nil {
			h.Stop()
		}
	}
	if err != nil {
		return s.failStart(u, err)
	}

	s.current = u
	s.handle = h
	s.clockTime = 0
	s.activeCue = -1
	if s.paused {
		h.Pause()
	}
	s.setState(StateLoading)
	return nil
}

// failStart fails the queue head u that never began playing and drops it.
func (s *Synchronizer) failStart(u *utterance.Utterance, err error) []func() {
	s.logger.Error().Err(err).Str("utteranceId", u.ID).Msg("Failed to start audio")
	if failErr := u.Fail(err); failErr != nil {
		s.logger.Warn().Err(failErr).Str("utteranceId", u.ID).Msg("Unexpected utterance status")
	}
	if head := s.queue.Peek(); head == u {
		s.queue.Pop()
	}
	metrics.UtterancesPlayed.WithLabelValues("failed").Inc()
	s.publish(bus.EventTypePlaybackFailed, map[string]any{
		"utteranceId": u.ID,
		"error":       err.Error(),
	})
	return s.endCallback(u, "failed")
}

func (s *Synchronizer) begin() []func() {
	u := s.current
	if err := u.Advance(utterance.StatusPlaying); err != nil {
		s.logger.Warn().Err(err).Str("utteranceId", u.ID).Msg("Unexpected utterance status")
	}
	s.setState(StatePlaying)

	s.logger.Info().Str("utteranceId", u.ID).Str("expression", u.Expression).Msg("Playback started")
	s.publish(bus.EventTypePlaybackStarted, map[string]any{
		"utteranceId": u.ID,
		"expression":  u.Expression,
		"duration":    u.Timeline.Duration(),
	})

	if fn := s.onStart; fn != nil {
		return []func(){func() { fn(u) }}
	}
	return nil
}

// sample reads the audio clock and returns the viseme for the active cue.
func (s *Synchronizer) sample() avatar3d.MorphTarget {
	s.clockTime = s.handle.Position()
	s.activeCue = -1
	if s.current.Timeline == nil {
		return avatar3d.NoTarget
	}

	idx, ok := s.current.Timeline.ActiveAt(s.clockTime)
	if !ok {
		return avatar3d.NoTarget
	}
	s.activeCue = idx
	target, ok := avatar3d.VisemeFor(s.current.Timeline.At(idx).Value)
	if !ok {
		return avatar3d.NoTarget
	}
	return target
}

// end retires the finished head and immediately loads the next utterance.
func (s *Synchronizer) end() []func() {
	u := s.current
	s.setState(StateEnded)

	if err := u.Advance(utterance.StatusDone); err != nil {
		s.logger.Warn().Err(err).Str("utteranceId", u.ID).Msg("Unexpected utterance status")
	}
	s.queue.Pop()
	s.clear()
	metrics.UtterancesPlayed.WithLabelValues("done").Inc()

	s.logger.Info().Str("utteranceId", u.ID).Msg("Playback finished")
	s.publish(bus.EventTypePlaybackFinished, map[string]any{"utteranceId": u.ID})

	notify := s.endCallback(u, "done")
	s.setState(StateIdle)
	return append(notify, s.load()...)
}

func (s *Synchronizer) endCallback(u *utterance.Utterance, outcome string) []func() {
	fn := s.onEnd
	if fn == nil {
		return nil
	}
	queued := s.queue.Len()
	return []func(){func() { fn(u, outcome, queued) }}
}

func (s *Synchronizer) clear() {
	s.current = nil
	s.handle = nil
	s.clockTime = 0
	s.activeCue = -1
}

// Stop halts the current utterance and drops it from the queue. The rest of
// the queue plays from the next tick. It reports whether anything was
// stopped.
func (s *Synchronizer) Stop() bool {
	var notify []func()

	s.mu.Lock()
	u := s.current
	if u == nil {
		s.mu.Unlock()
		return false
	}

	s.handle.Stop()
	if err := u.Advance(utterance.StatusDone); err != nil {
		s.logger.Warn().Err(err).Str("utteranceId", u.ID).Msg("Unexpected utterance status")
	}
	if head := s.queue.Peek(); head == u {
		s.queue.Pop()
	}
	s.clear()
	s.setState(StateIdle)
	metrics.UtterancesPlayed.WithLabelValues("stopped").Inc()

	s.logger.Info().Str("utteranceId", u.ID).Msg("Playback stopped")
	s.publish(bus.EventTypePlaybackStopped, map[string]any{"utteranceId": u.ID})
	notify = s.endCallback(u, "stopped")
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return true
}

// Pause freezes the current audio. Utterances loaded while paused start
// paused.
func (s *Synchronizer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	if s.handle != nil {
		s.handle.Pause()
	}
}

func (s *Synchronizer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	if s.handle != nil {
		s.handle.Resume()
	}
}

// Snapshot returns the current playback state.
func (s *Synchronizer) Snapshot() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PlaybackState{
		State:     s.state,
		Current:   s.current,
		ClockTime: s.clockTime,
		ActiveCue: s.activeCue,
		Paused:    s.paused,
		Queued:    s.queue.Len(),
	}
}

func (s *Synchronizer) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	metrics.PlaybackState.Set(float64(to))

	s.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Playback state changed")
	s.publish(bus.EventTypePlaybackStateChanged, map[string]any{
		"from": from.String(),
		"to":   to.String(),
	})
}

func (s *Synchronizer) publish(t bus.EventType, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Type: t, Data: data})
}
