// Package voice tracks the conversational state of the avatar and turns
// recorded speech into spoken replies.
package voice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

// ErrInvalidTransition is returned when a trigger has no entry for the current state.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is the conversational state of the avatar.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateSynthesizing
	StateSpeaking
)

var stateNames = [...]string{"idle", "recording", "transcribing", "synthesizing", "speaking"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Trigger moves the session between states.
type Trigger string

const (
	TriggerStartRecording   Trigger = "start_recording"
	TriggerStopRecording    Trigger = "stop_recording"
	TriggerTranscribed      Trigger = "transcribed"       // transcript ready, nothing to speak
	TriggerTranscribedSpeak Trigger = "transcribed_speak" // transcript ready and sent to synthesis
	TriggerSubmitText       Trigger = "submit_text"
	TriggerFailed           Trigger = "failed"
	TriggerCancel           Trigger = "cancel"
	TriggerPlaybackStarted  Trigger = "playback_started"
	TriggerPlaybackEnded    Trigger = "playback_ended"   // more utterances queued
	TriggerPlaybackDrained  Trigger = "playback_drained" // queue empty
)

// Triggers lists every trigger.
var Triggers = []Trigger{
	TriggerStartRecording, TriggerStopRecording, TriggerTranscribed, TriggerTranscribedSpeak,
	TriggerSubmitText, TriggerFailed, TriggerCancel,
	TriggerPlaybackStarted, TriggerPlaybackEnded, TriggerPlaybackDrained,
}

// transitions is the complete table. A missing pair is an invalid transition.
var transitions = map[State]map[Trigger]State{
	StateIdle: {
		TriggerStartRecording:  StateRecording,
		TriggerSubmitText:      StateSynthesizing,
		TriggerCancel:          StateIdle,
		TriggerPlaybackStarted: StateSpeaking,
		TriggerPlaybackEnded:   StateIdle,
		TriggerPlaybackDrained: StateIdle,
	},
	StateRecording: {
		TriggerStopRecording:   StateTranscribing,
		TriggerFailed:          StateIdle,
		TriggerCancel:          StateIdle,
		TriggerPlaybackStarted: StateRecording,
		TriggerPlaybackEnded:   StateRecording,
		TriggerPlaybackDrained: StateRecording,
	},
	StateTranscribing: {
		TriggerTranscribed:      StateIdle,
		TriggerTranscribedSpeak: StateSynthesizing,
		TriggerFailed:           StateIdle,
		TriggerCancel:           StateIdle,
		TriggerPlaybackStarted:  StateTranscribing,
		TriggerPlaybackEnded:    StateTranscribing,
		TriggerPlaybackDrained:  StateTranscribing,
	},
	StateSynthesizing: {
		TriggerSubmitText:      StateSynthesizing,
		TriggerFailed:          StateIdle,
		TriggerCancel:          StateIdle,
		TriggerPlaybackStarted: StateSpeaking,
		TriggerPlaybackEnded:   StateSynthesizing,
		TriggerPlaybackDrained: StateSynthesizing,
	},
	StateSpeaking: {
		TriggerSubmitText:      StateSpeaking,
		TriggerFailed:          StateSpeaking,
		TriggerPlaybackStarted: StateSpeaking,
		TriggerPlaybackEnded:   StateSpeaking,
		TriggerPlaybackDrained: StateIdle,
	},
}

// stateExpressions is the face shown while in a state. Speaking uses the
// utterance's own expression and Idle returns to the default.
var stateExpressions = map[State]string{
	StateRecording:    "attentive",
	StateTranscribing: "thinking",
	StateSynthesizing: "thinking",
}

// Next returns the state a trigger leads to from s.
func Next(s State, t Trigger) (State, bool) {
	to, ok := transitions[s][t]
	return to, ok
}

// ExpressionSetter is the part of the animator the session drives.
type ExpressionSetter interface {
	SetExpression(name string) string
	ResetExpression() string
}

// Session is the single conversational state of the avatar. It is safe for
// concurrent use.
type Session struct {
	expressions ExpressionSetter
	bus         *bus.EventBus
	logger      zerolog.Logger

	mu    sync.Mutex
	state State
	since time.Time
}

// NewSession creates an idle session. expressions may be nil.
func NewSession(expressions ExpressionSetter, eventBus *bus.EventBus, logger zerolog.Logger) *Session {
	return &Session{
		expressions: expressions,
		bus:         eventBus,
		logger:      logger.With().Str("component", "session").Logger(),
		since:       time.Now(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Since returns when the current state was entered.
func (s *Session) Since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}

// Fire applies a trigger and returns the resulting state.
func (s *Session) Fire(t Trigger) (State, error) {
	_, to, err := s.transition(t)
	return to, err
}

func (s *Session) transition(t Trigger) (from, to State, err error) {
	s.mu.Lock()
	from = s.state
	to, ok := Next(from, t)
	if !ok {
		s.mu.Unlock()
		return from, from, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, t, from)
	}
	if to == from {
		s.mu.Unlock()
		return from, to, nil
	}
	s.state = to
	s.since = time.Now()
	s.mu.Unlock()

	s.logger.Debug().Str("from", from.String()).Str("to", to.String()).Str("trigger", string(t)).Msg("Session state changed")
	s.applyExpression(from, to)

	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Type: bus.EventTypeConversationStateChanged,
			Data: map[string]any{
				"from":    from.String(),
				"to":      to.String(),
				"trigger": string(t),
			},
		})
	}
	return from, to, nil
}

func (s *Session) applyExpression(from, to State) {
	if s.expressions == nil {
		return
	}
	if name, ok := stateExpressions[to]; ok {
		s.expressions.SetExpression(name)
		return
	}
	// the animator already reset the face when the queue drained
	if to == StateIdle && from != StateSpeaking {
		s.expressions.ResetExpression()
	}
}

// fire applies a trigger that may legitimately not apply, such as a
// playback callback arriving while recording.
func (s *Session) fire(t Trigger) {
	if _, err := s.Fire(t); err != nil {
		s.logger.Debug().Err(err).Msg("Trigger ignored")
	}
}

// PlaybackStarted implements playback.PlaybackObserver. An utterance
// without its own expression clears the thinking face.
func (s *Session) PlaybackStarted(u *utterance.Utterance) {
	from, to, err := s.transition(TriggerPlaybackStarted)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Trigger ignored")
		return
	}
	if to == StateSpeaking && from != StateSpeaking && u.Expression == "" && s.expressions != nil {
		if _, thinking := stateExpressions[from]; thinking {
			s.expressions.ResetExpression()
		}
	}
}

// PlaybackEnded implements playback.PlaybackObserver.
func (s *Session) PlaybackEnded(_ *utterance.Utterance, _ string, queued int) {
	if queued == 0 {
		s.fire(TriggerPlaybackDrained)
		return
	}
	s.fire(TriggerPlaybackEnded)
}
