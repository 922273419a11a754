package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/store"
)

// mockProvider is a scripted Provider.
type mockProvider struct {
	name  string
	audio []byte
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls []SynthesizeRequest
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *req)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &SynthesizeResponse{Audio: m.audio, Format: audio.FormatMP3, Provider: m.name}, nil
}

func (m *mockProvider) Health(ctx context.Context) error { return nil }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func defaultTable() *CapabilityTable {
	return NewCapabilityTable(config.TTSConfig{
		General:    "elevenlabs",
		Specialist: "sarvam",
		Restricted: []string{"te-IN", "kn-IN"},
	})
}

func TestCapabilityTable(t *testing.T) {
	table := NewCapabilityTable(config.TTSConfig{
		General:    "elevenlabs",
		Specialist: "sarvam",
		Restricted: []string{"te-IN", "kn-IN"},
		Languages:  map[string][]string{"ru-ru": {"yandex"}},
	})

	tests := []struct {
		lang string
		want []string
	}{
		{"en-IN", []string{"elevenlabs", "sarvam"}},
		{"hi-IN", []string{"elevenlabs", "sarvam"}},
		{"te-IN", []string{"sarvam"}},
		{"KN-in", []string{"sarvam"}},
		{"ru-RU", []string{"yandex"}},
		{"xx-YY", []string{"elevenlabs", "sarvam"}},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Chain(tt.lang))
		})
	}

	same := NewCapabilityTable(config.TTSConfig{General: "openai", Specialist: "openai"})
	assert.Equal(t, []string{"openai"}, same.Chain("en-US"))
}

func TestOrchestratorFallsBack(t *testing.T) {
	general := &mockProvider{name: "elevenlabs", err: errors.New("quota exceeded")}
	specialist := &mockProvider{name: "sarvam", audio: []byte("from-sarvam")}
	b := bus.NewEventBus()
	fallback := make(chan bus.Event, 1)
	b.Subscribe(bus.EventTypeSynthesisFallback, func(e bus.Event) { fallback <- e })

	o := NewOrchestrator([]Provider{general, specialist}, OrchestratorConfig{Table: defaultTable(), Bus: b}, zerolog.Nop())

	res, err := o.Synthesize(context.Background(), Request{Text: "namaste", Language: "hi-IN"})
	require.NoError(t, err)
	assert.Equal(t, []byte("from-sarvam"), res.Audio)
	assert.Equal(t, "sarvam", res.Provider)
	assert.NotEmpty(t, res.UtteranceID)
	require.Len(t, res.Attempts, 2)
	assert.Error(t, res.Attempts[0].Err)
	assert.NoError(t, res.Attempts[1].Err)

	// Same text and language go to the fallback.
	assert.Equal(t, "namaste", specialist.calls[0].Text)
	assert.Equal(t, "hi-IN", specialist.calls[0].Language)

	select {
	case e := <-fallback:
		assert.Equal(t, "elevenlabs", e.Data["failed"])
		assert.Equal(t, "sarvam", e.Data["next"])
	case <-time.After(time.Second):
		t.Fatal("no fallback event")
	}
}

func TestOrchestratorRestrictedLanguageSkipsGeneral(t *testing.T) {
	general := &mockProvider{name: "elevenlabs", audio: []byte("general")}
	specialist := &mockProvider{name: "sarvam", audio: []byte("specialist")}
	o := NewOrchestrator([]Provider{general, specialist}, OrchestratorConfig{Table: defaultTable()}, zerolog.Nop())

	res, err := o.Synthesize(context.Background(), Request{Text: "namaskaram", Language: "te-IN"})
	require.NoError(t, err)
	assert.Equal(t, "sarvam", res.Provider)
	assert.Equal(t, 0, general.callCount())
}

func TestOrchestratorSingleProviderFailure(t *testing.T) {
	only := &mockProvider{name: "elevenlabs", err: errors.New("unauthorized")}
	table := NewCapabilityTable(config.TTSConfig{General: "elevenlabs"})
	o := NewOrchestrator([]Provider{only}, OrchestratorConfig{Table: table}, zerolog.Nop())

	res, err := o.Synthesize(context.Background(), Request{Text: "hello", Language: "en-IN"})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynthesis)

	var synthErr *SynthesisError
	require.True(t, errors.As(err, &synthErr))
	assert.Equal(t, "en-IN", synthErr.Language)
	require.Len(t, synthErr.Attempts, 1)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestOrchestratorEmptyPayloadIsFailure(t *testing.T) {
	empty := &mockProvider{name: "elevenlabs", audio: nil}
	good := &mockProvider{name: "sarvam", audio: []byte("ok")}
	o := NewOrchestrator([]Provider{empty, good}, OrchestratorConfig{Table: defaultTable()}, zerolog.Nop())

	res, err := o.Synthesize(context.Background(), Request{Text: "hello", Language: "en-IN"})
	require.NoError(t, err)
	assert.Equal(t, "sarvam", res.Provider)
	assert.ErrorIs(t, res.Attempts[0].Err, ErrEmptyAudio)
}

func TestOrchestratorProviderTimeout(t *testing.T) {
	slow := &mockProvider{name: "elevenlabs", audio: []byte("late"), delay: time.Second}
	fast := &mockProvider{name: "sarvam", audio: []byte("fast")}
	o := NewOrchestrator([]Provider{slow, fast}, OrchestratorConfig{
		Table:           defaultTable(),
		ProviderTimeout: 50 * time.Millisecond,
	}, zerolog.Nop())

	start := time.Now()
	res, err := o.Synthesize(context.Background(), Request{Text: "hello", Language: "en-IN"})
	require.NoError(t, err)
	assert.Equal(t, "sarvam", res.Provider)
	assert.ErrorIs(t, res.Attempts[0].Err, ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestOrchestratorMissingProvider(t *testing.T) {
	good := &mockProvider{name: "sarvam", audio: []byte("ok")}
	o := NewOrchestrator([]Provider{good}, OrchestratorConfig{Table: defaultTable()}, zerolog.Nop())

	res, err := o.Synthesize(context.Background(), Request{Text: "hello", Language: "en-IN"})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Attempts[0].Err, ErrProviderUnavailable)
}

func TestOrchestratorNoCaching(t *testing.T) {
	p := &mockProvider{name: "elevenlabs", audio: []byte("a")}
	o := NewOrchestrator([]Provider{p}, OrchestratorConfig{Table: NewCapabilityTable(config.TTSConfig{General: "elevenlabs"})}, zerolog.Nop())

	first, err := o.Synthesize(context.Background(), Request{Text: "same", Language: "en-IN"})
	require.NoError(t, err)
	second, err := o.Synthesize(context.Background(), Request{Text: "same", Language: "en-IN"})
	require.NoError(t, err)

	assert.Equal(t, 2, p.callCount())
	assert.NotEqual(t, first.UtteranceID, second.UtteranceID)
}

func TestOrchestratorRejectsEmptyText(t *testing.T) {
	p := &mockProvider{name: "elevenlabs", audio: []byte("a")}
	o := NewOrchestrator([]Provider{p}, OrchestratorConfig{Table: defaultTable()}, zerolog.Nop())

	_, err := o.Synthesize(context.Background(), Request{Text: "   ", Language: "en-IN"})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, 0, p.callCount())
}

func TestOrchestratorPersistsAudio(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	p := &mockProvider{name: "elevenlabs", audio: []byte("persist-me")}
	o := NewOrchestrator([]Provider{p}, OrchestratorConfig{Table: defaultTable(), Store: fs}, zerolog.Nop())

	res, err := o.Synthesize(context.Background(), Request{UtteranceID: "fixed-id", Text: "hi", Language: "en-IN"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", res.UtteranceID)

	clip, err := fs.Get(context.Background(), "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, []byte("persist-me"), clip.Data)
	assert.Equal(t, audio.FormatMP3, clip.Format)
}

func TestOrchestratorCancelledContext(t *testing.T) {
	p := &mockProvider{name: "elevenlabs", audio: []byte("a")}
	o := NewOrchestrator([]Provider{p}, OrchestratorConfig{Table: defaultTable()}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Synthesize(ctx, Request{Text: "hi", Language: "en-IN"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.callCount())
}

func TestNewProvidersFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().TTS
	cfg.Languages = map[string][]string{"ru-ru": {"yandex"}, "en-us": {"openai", "piper"}}

	names := map[string]bool{}
	for _, p := range NewProviders(cfg, zerolog.Nop()) {
		names[p.Name()] = true
	}
	assert.Equal(t, map[string]bool{
		"elevenlabs": true, "sarvam": true, "yandex": true, "openai": true, "piper": true,
	}, names)
}
