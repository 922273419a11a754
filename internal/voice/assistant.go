package voice

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/pipeline"
	"github.com/normanking/cortexlipsync/internal/stt"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

// Speaker queues text for synthesis and playback.
type Speaker interface {
	Speak(ctx context.Context, req pipeline.Request) (*utterance.Utterance, error)
}

// Recording is one captured piece of speech.
type Recording struct {
	Audio      []byte
	Format     audio.Format
	Filename   string
	Language   string
	Speak      bool   // send the transcript to the pipeline
	Expression string // expression for the spoken reply
}

// Turn is the outcome of a recording.
type Turn struct {
	Transcript *stt.TranscribeResponse
	Spoken     string               // filtered text sent to synthesis, if any
	Utterance  *utterance.Utterance // nil unless spoken
}

// Assistant connects transcription and synthesis to the session.
type Assistant struct {
	session  *Session
	stt      stt.Provider
	filter   *stt.Filter
	speaker  Speaker
	language string
	bus      *bus.EventBus
	logger   zerolog.Logger
}

// NewAssistant creates an assistant. language is used for recordings that do
// not name one.
func NewAssistant(session *Session, provider stt.Provider, filter *stt.Filter, speaker Speaker, language string, eventBus *bus.EventBus, logger zerolog.Logger) *Assistant {
	if filter == nil {
		filter = stt.NewFilter(nil)
	}
	return &Assistant{
		session:  session,
		stt:      provider,
		filter:   filter,
		speaker:  speaker,
		language: language,
		bus:      eventBus,
		logger:   logger.With().Str("component", "assistant").Logger(),
	}
}

// Session returns the session the assistant drives.
func (a *Assistant) Session() *Session {
	return a.session
}

// Say submits text for synthesis.
func (a *Assistant) Say(ctx context.Context, req pipeline.Request) (*utterance.Utterance, error) {
	a.session.fire(TriggerSubmitText)
	u, err := a.speaker.Speak(ctx, req)
	if err != nil {
		a.session.fire(TriggerFailed)
		return u, err
	}
	return u, nil
}

// Transcribe runs a recording through speech recognition and, when asked,
// speaks the filtered transcript. The transcript is returned even when
// synthesis fails.
func (a *Assistant) Transcribe(ctx context.Context, rec Recording) (*Turn, error) {
	if a.stt == nil {
		return nil, stt.ErrProviderUnavailable
	}
	if rec.Language == "" {
		rec.Language = a.language
	}

	a.session.fire(TriggerStartRecording)
	a.session.fire(TriggerStopRecording)

	a.logger.Info().Int("bytes", len(rec.Audio)).Str("language", rec.Language).Msg("Processing speech to text")
	resp, err := a.stt.Transcribe(ctx, &stt.TranscribeRequest{
		Audio:    rec.Audio,
		Format:   rec.Format,
		Filename: rec.Filename,
		Language: rec.Language,
	})
	if err != nil {
		a.session.fire(TriggerFailed)
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	if a.bus != nil {
		a.bus.Publish(bus.Event{
			Type: bus.EventTypeSTTResult,
			Data: map[string]any{
				"text":     resp.Text,
				"language": resp.Language,
				"provider": resp.Provider,
			},
		})
	}

	turn := &Turn{Transcript: resp}
	if !rec.Speak {
		a.session.fire(TriggerTranscribed)
		return turn, nil
	}

	cleaned, ok := a.filter.Clean(resp.Text)
	if !ok {
		a.logger.Debug().Str("raw", resp.Text).Msg("Transcript contained only filler words, skipping")
		a.session.fire(TriggerTranscribed)
		return turn, nil
	}
	turn.Spoken = cleaned

	a.session.fire(TriggerTranscribedSpeak)
	u, err := a.speaker.Speak(ctx, pipeline.Request{
		Text:       cleaned,
		Language:   resp.Language,
		Expression: rec.Expression,
	})
	turn.Utterance = u
	if err != nil {
		a.session.fire(TriggerFailed)
		return turn, err
	}
	return turn, nil
}
