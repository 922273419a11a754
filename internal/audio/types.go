// Package audio decodes synthesized speech into 16-bit PCM and writes the
// WAV container consumed by the aligner and the playback device.
package audio

import (
	"bytes"
	"errors"
	"strings"
	"time"
)

// Common errors
var (
	ErrInvalidFormat     = errors.New("invalid audio format")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyAudio        = errors.New("audio data is empty")
)

// Format identifies an audio encoding
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatMuLaw   Format = "mulaw"
	FormatALaw    Format = "alaw"
	FormatOGG     Format = "ogg"
	FormatWebM    Format = "webm"
	FormatM4A     Format = "m4a"
	FormatFLAC    Format = "flac"
)

// ParseFormat normalizes a format name or MIME type.
func ParseFormat(s string) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "audio/")
	switch s {
	case "wav", "wave", "x-wav", "pcm_s16le":
		return FormatWAV
	case "mp3", "mpeg", "mpga":
		return FormatMP3
	case "mulaw", "ulaw", "pcmu", "basic", "g711_ulaw":
		return FormatMuLaw
	case "alaw", "pcma", "g711_alaw":
		return FormatALaw
	case "ogg", "opus":
		return FormatOGG
	case "webm":
		return FormatWebM
	case "m4a", "mp4", "aac":
		return FormatM4A
	case "flac":
		return FormatFLAC
	}
	return FormatUnknown
}

// MIMEType returns the content type used when serving the format.
func (f Format) MIMEType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatMuLaw:
		return "audio/basic"
	case FormatOGG:
		return "audio/ogg"
	case FormatWebM:
		return "audio/webm"
	case FormatM4A:
		return "audio/mp4"
	case FormatFLAC:
		return "audio/flac"
	}
	return "application/octet-stream"
}

// DetectFormat sniffs container magic bytes. Headerless G.711 cannot be
// detected and reports FormatUnknown.
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatM4A
	}
	return FormatUnknown
}

// PCM is interleaved signed 16-bit little-endian audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Data) / (2 * p.Channels)
}

// Duration returns the playback length.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// Samples returns the data as int16 values.
func (p *PCM) Samples() []int16 {
	out := make([]int16, len(p.Data)/2)
	for i := range out {
		out[i] = int16(uint16(p.Data[2*i]) | uint16(p.Data[2*i+1])<<8)
	}
	return out
}

// Mono averages all channels into one.
func (p *PCM) Mono() *PCM {
	if p.Channels <= 1 {
		return p
	}
	samples := p.Samples()
	frames := p.Frames()
	out := make([]byte, frames*2)
	for f := 0; f < frames; f++ {
		sum := 0
		for c := 0; c < p.Channels; c++ {
			sum += int(samples[f*p.Channels+c])
		}
		v := uint16(int16(sum / p.Channels))
		out[2*f] = byte(v)
		out[2*f+1] = byte(v >> 8)
	}
	return &PCM{Data: out, SampleRate: p.SampleRate, Channels: 1}
}

// Silence returns d of zero samples matching p's layout.
func (p *PCM) Silence(d time.Duration) []byte {
	frames := int(d * time.Duration(p.SampleRate) / time.Second)
	return make([]byte, frames*2*p.Channels)
}
