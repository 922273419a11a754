package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(frames, channels int) []byte {
	out := make([]byte, frames*channels*2)
	for i := 0; i < frames*channels; i++ {
		v := uint16(int16((i % 200) * 100))
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

func TestWAVRoundTrip(t *testing.T) {
	in := &PCM{Data: sine(16000, 1), SampleRate: 16000, Channels: 1}

	wav, err := EncodeWAV(in)
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, DetectFormat(wav))
	assert.Len(t, wav, 44+len(in.Data))

	out, err := ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, in.SampleRate, out.SampleRate)
	assert.Equal(t, in.Channels, out.Channels)
	assert.Equal(t, in.Data, out.Data)
	assert.Equal(t, time.Second, out.Duration())
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	_, err := EncodeWAV(&PCM{})
	assert.ErrorIs(t, err, ErrEmptyAudio)

	_, err = EncodeWAV(&PCM{Data: []byte{1, 2, 3}, SampleRate: 8000, Channels: 1})
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = EncodeWAV(&PCM{Data: sine(10, 3), SampleRate: 8000, Channels: 3})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseWAVRejectsGarbage(t *testing.T) {
	_, err := ParseWAV([]byte("definitely not audio"))
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ParseWAV([]byte("RIFF\x00\x00\x00\x00WAVE"))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestDecodeMuLaw(t *testing.T) {
	ulaw := EncodeMuLaw(sine(800, 1))

	pcm, err := Decode(ulaw, FormatMuLaw)
	require.NoError(t, err)
	assert.Equal(t, G711SampleRate, pcm.SampleRate)
	assert.Equal(t, 800, pcm.Frames())
	assert.Equal(t, 100*time.Millisecond, pcm.Duration())
}

func TestDecodeCorruptMP3(t *testing.T) {
	_, err := Decode([]byte("ID3 but nothing after"), FormatUnknown)
	assert.Error(t, err)
}

func TestDecodeUnknown(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x02, 0x03}, FormatUnknown)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Decode([]byte("OggS...."), FormatUnknown)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Decode(nil, FormatWAV)
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestToWAVDownmixes(t *testing.T) {
	stereo, err := EncodeWAV(&PCM{Data: sine(400, 2), SampleRate: 22050, Channels: 2})
	require.NoError(t, err)

	mono, err := ToWAV(stereo, FormatUnknown)
	require.NoError(t, err)

	pcm, err := ParseWAV(mono)
	require.NoError(t, err)
	assert.Equal(t, 1, pcm.Channels)
	assert.Equal(t, 400, pcm.Frames())
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"audio/mpeg":             FormatMP3,
		"MP3":                    FormatMP3,
		"audio/wav":              FormatWAV,
		"audio/webm;codecs=opus": FormatWebM,
		"pcmu":                   FormatMuLaw,
		"something":              FormatUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseFormat(in), in)
	}
}

func TestSilence(t *testing.T) {
	p := &PCM{SampleRate: 16000, Channels: 1}
	assert.Len(t, p.Silence(150*time.Millisecond), 2400*2)
}
