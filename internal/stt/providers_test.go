package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
)

func testWAV(t *testing.T) []byte {
	t.Helper()
	wav, err := audio.EncodeWAV(&audio.PCM{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	return wav
}

func TestSarvamTranscribe(t *testing.T) {
	wav := testWAV(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/speech-to-text", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("api-subscription-key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "saarika:v2.5", r.FormValue("model"))
		assert.Equal(t, "hi-IN", r.FormValue("language_code"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.wav", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, wav, data)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcript":" namaste duniya ","language_code":"hi-IN"}`))
	}))
	defer server.Close()

	p := NewSarvamProvider(zerolog.Nop(), config.SarvamConfig{APIKey: "sk-test", BaseURL: server.URL})
	resp, err := p.Transcribe(context.Background(), &TranscribeRequest{Audio: wav, Language: "hi-IN"})
	require.NoError(t, err)
	assert.Equal(t, "namaste duniya", resp.Text)
	assert.Equal(t, "hi-IN", resp.Language)
	assert.Equal(t, "sarvam", resp.Provider)
}

func TestSarvamErrors(t *testing.T) {
	status := http.StatusBadRequest
	body := `{"error":"bad audio"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	defer server.Close()

	p := NewSarvamProvider(zerolog.Nop(), config.SarvamConfig{APIKey: "sk-test", BaseURL: server.URL})
	_, err := p.Transcribe(context.Background(), &TranscribeRequest{Audio: testWAV(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")

	status, body = http.StatusOK, `{"transcript":""}`
	_, err = p.Transcribe(context.Background(), &TranscribeRequest{Audio: testWAV(t)})
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	_, err = p.Transcribe(context.Background(), &TranscribeRequest{})
	assert.ErrorIs(t, err, ErrAudioTooShort)

	noKey := NewSarvamProvider(zerolog.Nop(), config.SarvamConfig{BaseURL: server.URL})
	_, err = noKey.Transcribe(context.Background(), &TranscribeRequest{Audio: testWAV(t)})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, noKey.Health(context.Background()), ErrProviderUnavailable)
}

func TestWhisperTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-openai", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "hi", r.FormValue("language"))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "audio.wav", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"namaste"}`))
	}))
	defer server.Close()

	p := NewWhisperProvider(zerolog.Nop(), config.OpenAIConfig{APIKey: "sk-openai", BaseURL: server.URL + "/v1"})
	resp, err := p.Transcribe(context.Background(), &TranscribeRequest{
		Audio:    audio.EncodeMuLaw(make([]byte, 320)),
		Format:   audio.FormatMuLaw,
		Language: "hi-IN",
	})
	require.NoError(t, err)
	assert.Equal(t, "namaste", resp.Text)
	assert.Equal(t, "hi-IN", resp.Language)
	assert.Equal(t, "whisper", resp.Provider)
}

func TestNewProvider(t *testing.T) {
	cfg := config.DefaultConfig()

	p, err := NewProvider(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "whisper", p.Name())

	cfg.STT.Provider = "Sarvam"
	p, err = NewProvider(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "sarvam", p.Name())

	cfg.STT.Provider = "deepgram"
	_, err = NewProvider(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestIsoLanguage(t *testing.T) {
	assert.Equal(t, "hi", isoLanguage("hi-IN"))
	assert.Equal(t, "en", isoLanguage("EN_us"))
	assert.Equal(t, "ta", isoLanguage("ta"))
	assert.Equal(t, "", isoLanguage(""))
}
