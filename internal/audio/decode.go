package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/zaf/g711"
)

// G711SampleRate is the telephony rate assumed for headerless G.711.
const G711SampleRate = 8000

// Decode converts audio in the given format to PCM. An unknown format is
// sniffed from the data first.
func Decode(data []byte, format Format) (*PCM, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	if format == FormatUnknown {
		format = DetectFormat(data)
	}

	switch format {
	case FormatWAV:
		return ParseWAV(data)
	case FormatMP3:
		return DecodeMP3(data)
	case FormatMuLaw:
		return &PCM{Data: DecodeMuLaw(data), SampleRate: G711SampleRate, Channels: 1}, nil
	case FormatALaw:
		return &PCM{Data: DecodeALaw(data), SampleRate: G711SampleRate, Channels: 1}, nil
	case FormatUnknown:
		return nil, fmt.Errorf("%w: could not detect format", ErrUnsupportedFormat)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// DecodeMP3 decodes an MP3 stream. The decoder always yields stereo.
func DecodeMP3(data []byte) (*PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrInvalidFormat, err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrInvalidFormat, err)
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	return &PCM{Data: pcm, SampleRate: dec.SampleRate(), Channels: 2}, nil
}

// DecodeMuLaw expands G.711 μ-law bytes into 16-bit PCM.
func DecodeMuLaw(data []byte) []byte {
	return g711.DecodeUlaw(data)
}

// DecodeALaw expands G.711 A-law bytes into 16-bit PCM.
func DecodeALaw(data []byte) []byte {
	return g711.DecodeAlaw(data)
}

// EncodeMuLaw compresses 16-bit PCM into G.711 μ-law.
func EncodeMuLaw(pcm []byte) []byte {
	return g711.EncodeUlaw(pcm)
}

// ToWAV decodes data and re-encodes it as a mono 16-bit WAV.
func ToWAV(data []byte, format Format) ([]byte, error) {
	pcm, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(pcm.Mono())
}
