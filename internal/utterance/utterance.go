// Package utterance models a unit of speech moving through synthesis,
// alignment and playback, and the request-ordered queue that holds it.
package utterance

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle position of an utterance.
type Status int

const (
	StatusPending Status = iota
	StatusAudioReady
	StatusTimelineReady
	StatusPlaying
	StatusDone
	StatusFailed
)

var statusNames = [...]string{
	StatusPending:       "pending",
	StatusAudioReady:    "audio_ready",
	StatusTimelineReady: "timeline_ready",
	StatusPlaying:       "playing",
	StatusDone:          "done",
	StatusFailed:        "failed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid utterance status transition")

// transitions lists every allowed status change.
var transitions = map[Status][]Status{
	StatusPending:       {StatusAudioReady, StatusFailed},
	StatusAudioReady:    {StatusTimelineReady, StatusFailed},
	StatusTimelineReady: {StatusPlaying, StatusDone, StatusFailed},
	StatusPlaying:       {StatusDone},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Utterance is one piece of text on its way to becoming animated speech.
type Utterance struct {
	ID         string
	Seq        uint64
	Text       string
	Language   string
	Expression string
	CreatedAt  time.Time

	Audio       []byte
	AudioFormat string
	Provider    string
	Timeline    *Timeline

	mu     sync.RWMutex
	status Status
	err    error
}

// New creates a pending utterance.
func New(id string, seq uint64, text, language string) *Utterance {
	return &Utterance{
		ID:        id,
		Seq:       seq,
		Text:      text,
		Language:  language,
		CreatedAt: time.Now(),
		status:    StatusPending,
	}
}

// Status returns the current status.
func (u *Utterance) Status() Status {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.status
}

// Err returns the failure cause for a failed utterance.
func (u *Utterance) Err() error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.err
}

// Advance moves the utterance to the given status.
func (u *Utterance) Advance(to Status) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !CanTransition(u.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, u.status, to)
	}
	u.status = to
	return nil
}

// Fail marks the utterance failed with cause.
func (u *Utterance) Fail(cause error) error {
	if err := u.Advance(StatusFailed); err != nil {
		return err
	}
	u.mu.Lock()
	u.err = cause
	u.mu.Unlock()
	return nil
}

// AttachAudio records synthesized audio and moves to AudioReady.
func (u *Utterance) AttachAudio(audio []byte, format, provider string) error {
	if len(audio) == 0 {
		return errors.New("attach audio: empty payload")
	}
	if err := u.Advance(StatusAudioReady); err != nil {
		return err
	}
	u.Audio = audio
	u.AudioFormat = format
	u.Provider = provider
	return nil
}

// AttachTimeline records the mouth cue timeline and moves to TimelineReady.
func (u *Utterance) AttachTimeline(tl *Timeline) error {
	if tl == nil {
		return errors.New("attach timeline: nil timeline")
	}
	if err := u.Advance(StatusTimelineReady); err != nil {
		return err
	}
	u.Timeline = tl
	return nil
}
