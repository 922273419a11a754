// Package device plays utterance audio on the default PortAudio output.
package device

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/playback"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

const DefaultFramesPerBuffer = 1024

var ErrClosed = errors.New("audio handle already stopped")

// Initialize must be called once before any handle plays.
func Initialize() error {
	return portaudio.Initialize()
}

func Terminate() error {
	return portaudio.Terminate()
}

// Handle writes decoded PCM to a blocking PortAudio stream. Position counts
// frames handed to the device.
type Handle struct {
	pcm             *audio.PCM
	samples         []int16
	framesPerBuffer int
	logger          zerolog.Logger

	written  atomic.Int64
	started  atomic.Bool
	finished atomic.Bool
	paused   atomic.Bool
	stopped  atomic.Bool

	once sync.Once
}

func New(pcm *audio.PCM, framesPerBuffer int, logger zerolog.Logger) *Handle {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Handle{
		pcm:             pcm,
		samples:         pcm.Samples(),
		framesPerBuffer: framesPerBuffer,
		logger:          logger.With().Str("component", "portaudio").Logger(),
	}
}

// NewFactory decodes each utterance's audio and wraps it in a Handle.
func NewFactory(framesPerBuffer int, logger zerolog.Logger) playback.HandleFactory {
	return func(u *utterance.Utterance) (playback.AudioHandle, error) {
		pcm, err := audio.Decode(u.Audio, audio.ParseFormat(u.AudioFormat))
		if err != nil {
			return nil, err
		}
		return New(pcm, framesPerBuffer, logger), nil
	}
}

func (h *Handle) Play() error {
	if h.stopped.Load() {
		return ErrClosed
	}

	buf := make([]int16, h.framesPerBuffer*h.pcm.Channels)
	stream, err := portaudio.OpenDefaultStream(0, h.pcm.Channels, float64(h.pcm.SampleRate), h.framesPerBuffer, buf)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}

	go h.pump(stream, buf)
	return nil
}

func (h *Handle) pump(stream *portaudio.Stream, buf []int16) {
	defer func() {
		if err := stream.Stop(); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to stop stream")
		}
		stream.Close()
		h.finished.Store(true)
	}()

	channels := h.pcm.Channels
	for offset := 0; offset < len(h.samples); {
		if h.stopped.Load() {
			return
		}
		if h.paused.Load() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		n := copy(buf, h.samples[offset:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			h.logger.Warn().Err(err).Msg("Error writing audio")
		}
		offset += n
		h.written.Add(int64(n / channels))
		h.started.Store(true)
	}
}

func (h *Handle) Started() bool {
	return h.started.Load()
}

func (h *Handle) Finished() bool {
	return h.finished.Load() || (h.stopped.Load() && !h.started.Load())
}

func (h *Handle) Position() float64 {
	if h.pcm.SampleRate == 0 {
		return 0
	}
	return float64(h.written.Load()) / float64(h.pcm.SampleRate)
}

func (h *Handle) Pause() {
	h.paused.Store(true)
}

func (h *Handle) Resume() {
	h.paused.Store(false)
}

func (h *Handle) Stop() {
	h.once.Do(func() { h.stopped.Store(true) })
}

// Duration returns the length of the decoded audio.
func (h *Handle) Duration() time.Duration {
	return h.pcm.Duration()
}
