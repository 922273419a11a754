// Package playback plays queued utterances and maps their audio clock onto
// viseme weights, one animation tick at a time.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

var (
	ErrNoDuration = errors.New("cannot determine audio duration")
	// ErrNeverStarted is recorded on an utterance whose audio finished
	// before it ever reported playing.
	ErrNeverStarted = errors.New("audio finished without starting")
)

// AudioHandle is a single playback of one utterance's audio. Position is in
// seconds of audio time and is the clock the synchronizer follows.
type AudioHandle interface {
	Play() error
	Started() bool
	Finished() bool
	Position() float64
	Pause()
	Resume()
	Stop()
}

// HandleFactory builds an audio handle for an utterance.
type HandleFactory func(u *utterance.Utterance) (AudioHandle, error)

// Clock is a time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockHandle plays nothing and advances on a clock for the audio's
// duration. It is used when the frame consumer plays the audio itself.
type ClockHandle struct {
	mu       sync.Mutex
	clock    Clock
	duration time.Duration

	startedAt time.Time
	pausedAt  time.Time
	pausedFor time.Duration
	playing   bool
	paused    bool
	stopped   bool
}

func NewClockHandle(duration time.Duration, clock Clock) *ClockHandle {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ClockHandle{clock: clock, duration: duration}
}

func (h *ClockHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playing || h.stopped {
		return nil
	}
	h.startedAt = h.clock.Now()
	h.playing = true
	return nil
}

func (h *ClockHandle) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *ClockHandle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped || (h.playing && h.elapsed() >= h.duration)
}

func (h *ClockHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playing {
		return 0
	}
	e := h.elapsed()
	if e > h.duration {
		e = h.duration
	}
	return e.Seconds()
}

func (h *ClockHandle) elapsed() time.Duration {
	now := h.clock.Now()
	if h.paused {
		now = h.pausedAt
	}
	return now.Sub(h.startedAt) - h.pausedFor
}

func (h *ClockHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playing && !h.paused {
		h.paused = true
		h.pausedAt = h.clock.Now()
	}
}

func (h *ClockHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		h.pausedFor += h.clock.Now().Sub(h.pausedAt)
		h.paused = false
	}
}

func (h *ClockHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
}

// Duration returns the length of audio the handle runs for.
func (h *ClockHandle) Duration() time.Duration {
	return h.duration
}

// NewClockFactory builds clock handles. Duration comes from decoding the
// audio; formats that cannot be decoded fall back to the timeline length.
func NewClockFactory(clock Clock) HandleFactory {
	return func(u *utterance.Utterance) (AudioHandle, error) {
		d, err := AudioDuration(u)
		if err != nil {
			return nil, err
		}
		return NewClockHandle(d, clock), nil
	}
}

// AudioDuration returns how long an utterance's audio plays.
func AudioDuration(u *utterance.Utterance) (time.Duration, error) {
	pcm, err := audio.Decode(u.Audio, audio.ParseFormat(u.AudioFormat))
	if err == nil {
		return pcm.Duration(), nil
	}
	if u.Timeline != nil && u.Timeline.Duration() > 0 {
		return time.Duration(u.Timeline.Duration() * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("%w: %v", ErrNoDuration, err)
}
