package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	wavBitsPerSample = 16
	wavFormatPCM     = 1
	wavFormatALaw    = 6
	wavFormatMuLaw   = 7
)

// EncodeWAV wraps 16-bit PCM into a RIFF/WAVE container.
func EncodeWAV(p *PCM) ([]byte, error) {
	if p == nil || len(p.Data) == 0 {
		return nil, ErrEmptyAudio
	}
	if p.Channels <= 0 || p.Channels > 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidFormat, p.Channels)
	}
	if p.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, p.SampleRate)
	}
	if len(p.Data)%(2*p.Channels) != 0 {
		return nil, fmt.Errorf("%w: data length does not match channel count", ErrInvalidFormat)
	}

	blockAlign := p.Channels * wavBitsPerSample / 8
	byteRate := p.SampleRate * blockAlign
	dataSize := len(p.Data)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(p.Channels))
	binary.Write(buf, binary.LittleEndian, uint32(p.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(wavBitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(p.Data)

	return buf.Bytes(), nil
}

type wavFmt struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// ParseWAV reads a WAV container holding 16-bit PCM or G.711 audio.
func ParseWAV(data []byte) (*PCM, error) {
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidFormat)
	}

	var format *wavFmt
	i := 12
	for i+8 <= len(data) {
		id := string(data[i : i+4])
		size := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		body := i + 8
		next := body + size
		if size%2 != 0 {
			next++
		}

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidFormat)
			}
			var f wavFmt
			if err := binary.Read(bytes.NewReader(data[body:body+16]), binary.LittleEndian, &f); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
			}
			format = &f
		case "data":
			if format == nil {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidFormat)
			}
			end := body + size
			// Streaming encoders write a placeholder size; take what is there.
			if end > len(data) {
				end = len(data)
			}
			return decodeWAVData(format, data[body:end])
		}
		i = next
	}

	return nil, fmt.Errorf("%w: data chunk not found", ErrInvalidFormat)
}

func decodeWAVData(f *wavFmt, payload []byte) (*PCM, error) {
	if f.Channels == 0 || f.SampleRate == 0 {
		return nil, fmt.Errorf("%w: zero channels or sample rate", ErrInvalidFormat)
	}

	pcm := &PCM{SampleRate: int(f.SampleRate), Channels: int(f.Channels)}
	switch {
	case f.AudioFormat == wavFormatPCM && f.BitsPerSample == 16:
		pcm.Data = payload[:len(payload)-len(payload)%(2*pcm.Channels)]
	case f.AudioFormat == wavFormatMuLaw:
		pcm.Data = DecodeMuLaw(payload)
	case f.AudioFormat == wavFormatALaw:
		pcm.Data = DecodeALaw(payload)
	default:
		return nil, fmt.Errorf("%w: wav format %d with %d bits", ErrUnsupportedFormat, f.AudioFormat, f.BitsPerSample)
	}

	if len(pcm.Data) == 0 {
		return nil, ErrEmptyAudio
	}
	return pcm, nil
}
