package playback

import "github.com/normanking/cortexlipsync/internal/utterance"

// State is the synchronizer's playback state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateEnded
)

var stateNames = [...]string{"idle", "loading", "playing", "ended"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// PlaybackState is a point-in-time view for observers. Current is nil when
// idle.
type PlaybackState struct {
	State     State
	Current   *utterance.Utterance
	ClockTime float64
	ActiveCue int
	Paused    bool
	Queued    int
}
