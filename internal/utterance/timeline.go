package utterance

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Symbol is a mouth shape from the Rhubarb Lip Sync alphabet.
type Symbol string

const (
	SymbolA Symbol = "A" // closed mouth: P, B, M
	SymbolB Symbol = "B" // slightly open, clenched teeth: most consonants
	SymbolC Symbol = "C" // open mouth: EH, AE
	SymbolD Symbol = "D" // wide open: AA
	SymbolE Symbol = "E" // slightly rounded: AO, ER
	SymbolF Symbol = "F" // puckered: UW, OW, W
	SymbolG Symbol = "G" // teeth on lower lip: F, V
	SymbolH Symbol = "H" // tongue raised: long L
	SymbolX Symbol = "X" // idle / rest
)

// Valid reports whether s belongs to the alphabet.
func (s Symbol) Valid() bool {
	switch s {
	case SymbolA, SymbolB, SymbolC, SymbolD, SymbolE, SymbolF, SymbolG, SymbolH, SymbolX:
		return true
	}
	return false
}

// Cue is a closed interval [Start, End] of audio time showing one mouth
// shape. On a shared boundary the earlier cue is active.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value Symbol  `json:"value"`
}

// CueError describes the first cue that breaks timeline ordering rules.
type CueError struct {
	Index  int
	Reason string
}

func (e *CueError) Error() string {
	return fmt.Sprintf("cue %d: %s", e.Index, e.Reason)
}

// ValidateCues checks ordering, bounds and alphabet for a cue sequence.
func ValidateCues(cues []Cue) error {
	for i, c := range cues {
		if c.Start < 0 {
			return &CueError{Index: i, Reason: fmt.Sprintf("negative start %.3f", c.Start)}
		}
		if c.End < c.Start {
			return &CueError{Index: i, Reason: fmt.Sprintf("end %.3f before start %.3f", c.End, c.Start)}
		}
		if !c.Value.Valid() {
			return &CueError{Index: i, Reason: fmt.Sprintf("unknown symbol %q", c.Value)}
		}
		if i == 0 {
			continue
		}
		prev := cues[i-1]
		if c.Start < prev.Start {
			return &CueError{Index: i, Reason: "cues not sorted by start"}
		}
		if prev.End > c.Start {
			return &CueError{Index: i, Reason: fmt.Sprintf("overlaps previous cue ending at %.3f", prev.End)}
		}
	}
	return nil
}

// Timeline is a validated, immutable sequence of mouth cues.
type Timeline struct {
	cues []Cue
}

// NewTimeline validates cues and copies them into a Timeline.
func NewTimeline(cues []Cue) (*Timeline, error) {
	if err := ValidateCues(cues); err != nil {
		return nil, err
	}
	owned := make([]Cue, len(cues))
	copy(owned, cues)
	return &Timeline{cues: owned}, nil
}

// Len returns the number of cues.
func (t *Timeline) Len() int {
	return len(t.cues)
}

// At returns cue i.
func (t *Timeline) At(i int) Cue {
	return t.cues[i]
}

// Cues returns a copy of the cues.
func (t *Timeline) Cues() []Cue {
	out := make([]Cue, len(t.cues))
	copy(out, t.cues)
	return out
}

// Duration is the end of the last cue in seconds.
func (t *Timeline) Duration() float64 {
	if len(t.cues) == 0 {
		return 0
	}
	return t.cues[len(t.cues)-1].End
}

// ActiveAt returns the index of the earliest cue with start <= at <= end.
// On a shared boundary the earlier cue wins.
func (t *Timeline) ActiveAt(at float64) (int, bool) {
	i := sort.Search(len(t.cues), func(i int) bool { return t.cues[i].End >= at })
	if i < len(t.cues) && t.cues[i].Start <= at {
		return i, true
	}
	return -1, false
}

type timelineJSON struct {
	MouthCues []Cue `json:"mouthCues"`
}

// MarshalJSON writes the Rhubarb JSON shape.
func (t *Timeline) MarshalJSON() ([]byte, error) {
	cues := t.cues
	if cues == nil {
		cues = []Cue{}
	}
	return json.Marshal(timelineJSON{MouthCues: cues})
}

// UnmarshalJSON reads the Rhubarb JSON shape and validates it.
func (t *Timeline) UnmarshalJSON(data []byte) error {
	var raw struct {
		MouthCues *[]Cue `json:"mouthCues"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.MouthCues == nil {
		return fmt.Errorf("timeline: missing mouthCues")
	}
	if err := ValidateCues(*raw.MouthCues); err != nil {
		return err
	}
	t.cues = *raw.MouthCues
	return nil
}
