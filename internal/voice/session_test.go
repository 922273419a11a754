package voice

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

type recordingFace struct {
	mu     sync.Mutex
	set    []string
	resets int
}

func (f *recordingFace) SetExpression(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = append(f.set, name)
	return name
}

func (f *recordingFace) ResetExpression() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return "neutral"
}

func (f *recordingFace) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.set...), f.resets
}

var allStates = []State{StateIdle, StateRecording, StateTranscribing, StateSynthesizing, StateSpeaking}

func TestTransitionTableCoversEveryState(t *testing.T) {
	for _, s := range allStates {
		row, ok := transitions[s]
		require.True(t, ok, s.String())
		for trigger, to := range row {
			assert.Contains(t, Triggers, trigger)
			assert.Contains(t, allStates, to)
		}
	}
	assert.Len(t, transitions, len(allStates))
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from    State
		trigger Trigger
		to      State
		ok      bool
	}{
		{StateIdle, TriggerStartRecording, StateRecording, true},
		{StateIdle, TriggerStopRecording, StateIdle, false},
		{StateIdle, TriggerSubmitText, StateSynthesizing, true},
		{StateRecording, TriggerStopRecording, StateTranscribing, true},
		{StateRecording, TriggerStartRecording, StateRecording, false},
		{StateTranscribing, TriggerTranscribed, StateIdle, true},
		{StateTranscribing, TriggerTranscribedSpeak, StateSynthesizing, true},
		{StateTranscribing, TriggerPlaybackDrained, StateTranscribing, true},
		{StateSynthesizing, TriggerPlaybackStarted, StateSpeaking, true},
		{StateSynthesizing, TriggerFailed, StateIdle, true},
		{StateSpeaking, TriggerPlaybackEnded, StateSpeaking, true},
		{StateSpeaking, TriggerPlaybackDrained, StateIdle, true},
		{StateSpeaking, TriggerStartRecording, StateSpeaking, false},
		{StateSpeaking, TriggerCancel, StateSpeaking, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+string(tt.trigger), func(t *testing.T) {
			to, ok := Next(tt.from, tt.trigger)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.to, to)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "speaking", StateSpeaking.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestSessionInvalidTransition(t *testing.T) {
	s := NewSession(nil, nil, zerolog.Nop())

	state, err := s.Fire(TriggerStopRecording)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionDrivesExpressions(t *testing.T) {
	face := &recordingFace{}
	s := NewSession(face, nil, zerolog.Nop())

	_, err := s.Fire(TriggerStartRecording)
	require.NoError(t, err)
	_, err = s.Fire(TriggerStopRecording)
	require.NoError(t, err)
	_, err = s.Fire(TriggerTranscribed)
	require.NoError(t, err)

	set, resets := face.snapshot()
	assert.Equal(t, []string{"attentive", "thinking"}, set)
	assert.Equal(t, 1, resets)
}

func TestSessionFollowsPlayback(t *testing.T) {
	face := &recordingFace{}
	s := NewSession(face, nil, zerolog.Nop())

	_, err := s.Fire(TriggerSubmitText)
	require.NoError(t, err)

	s.PlaybackStarted(utterance.New("u1", 1, "hello", "en-IN"))
	assert.Equal(t, StateSpeaking, s.State())
	_, resets := face.snapshot()
	assert.Equal(t, 1, resets, "no utterance expression clears the thinking face")

	s.PlaybackEnded(nil, "done", 1)
	assert.Equal(t, StateSpeaking, s.State())

	s.PlaybackEnded(nil, "done", 0)
	assert.Equal(t, StateIdle, s.State())
	_, resets = face.snapshot()
	assert.Equal(t, 1, resets)
}

func TestSessionKeepsUtteranceExpression(t *testing.T) {
	face := &recordingFace{}
	s := NewSession(face, nil, zerolog.Nop())
	_, err := s.Fire(TriggerSubmitText)
	require.NoError(t, err)

	u := utterance.New("u1", 1, "hello", "en-IN")
	u.Expression = "smile"
	s.PlaybackStarted(u)

	_, resets := face.snapshot()
	assert.Zero(t, resets)
}

func TestSessionIgnoresPlaybackWhileRecording(t *testing.T) {
	s := NewSession(nil, nil, zerolog.Nop())
	_, err := s.Fire(TriggerStartRecording)
	require.NoError(t, err)

	s.PlaybackStarted(utterance.New("u1", 1, "hello", "en-IN"))
	s.PlaybackEnded(nil, "done", 0)
	assert.Equal(t, StateRecording, s.State())
}

func TestSessionPublishesStateChanges(t *testing.T) {
	eventBus := bus.NewEventBus()
	events := make(chan bus.Event, 4)
	eventBus.Subscribe(bus.EventTypeConversationStateChanged, func(e bus.Event) { events <- e })

	s := NewSession(nil, eventBus, zerolog.Nop())
	before := s.Since()
	_, err := s.Fire(TriggerStartRecording)
	require.NoError(t, err)
	assert.False(t, s.Since().Before(before))

	select {
	case e := <-events:
		assert.Equal(t, "idle", e.Data["from"])
		assert.Equal(t, "recording", e.Data["to"])
		assert.Equal(t, "start_recording", e.Data["trigger"])
	case <-time.After(time.Second):
		t.Fatal("no state change event")
	}

	// self transitions are silent
	_, err = s.Fire(TriggerPlaybackEnded)
	require.NoError(t, err)
	select {
	case e := <-events:
		t.Fatalf("unexpected event %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
