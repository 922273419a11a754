package device

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/playback"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

func TestHandleBeforePlay(t *testing.T) {
	pcm := &audio.PCM{Data: make([]byte, 16000*2), SampleRate: 16000, Channels: 1}
	h := New(pcm, 0, zerolog.Nop())

	assert.Equal(t, DefaultFramesPerBuffer, h.framesPerBuffer)
	assert.False(t, h.Started())
	assert.False(t, h.Finished())
	assert.Equal(t, 0.0, h.Position())
	assert.Equal(t, time.Second, h.Duration())

	h.Stop()
	h.Stop()
	assert.True(t, h.Finished())
	assert.ErrorIs(t, h.Play(), ErrClosed)
}

func TestFactoryRejectsUndecodableAudio(t *testing.T) {
	factory := NewFactory(512, zerolog.Nop())
	u := utterance.New("u1", 1, "hi", "en-US")
	u.Audio = []byte("not audio")
	u.AudioFormat = "ogg"

	_, err := factory(u)
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)

	wav, err := audio.EncodeWAV(&audio.PCM{Data: make([]byte, 800), SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	u.Audio = wav
	u.AudioFormat = "wav"

	var h playback.AudioHandle
	h, err = factory(u)
	require.NoError(t, err)
	assert.False(t, h.Started())
}
