package stt

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFilterDefaults(t *testing.T) {
	f := NewFilter(nil)
	words := f.FillerWords()
	sort.Strings(words)

	want := append([]string(nil), DefaultFillerWords...)
	sort.Strings(want)
	assert.Equal(t, want, words)
}

func TestFilterClean(t *testing.T) {
	f := NewFilter(nil)

	tests := []struct {
		name    string
		input   string
		want    string
		wantHas bool
	}{
		{"simple", "um what is the weather", "what is the weather", true},
		{"multiple", "uh so umm what is the weather", "so what is the weather", true},
		{"filler only", "um uh hmm", "", false},
		{"punctuation only", "um, uh.", "", false},
		{"empty", "", "", false},
		{"no fillers", "namaste, how are you", "namaste, how are you", true},
		{"case insensitive", "UM hello", "hello", true},
		{"word boundaries", "umbrella summer", "umbrella summer", true},
		{"dangling comma", "hello, um.", "hello.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, has := f.Clean(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantHas, has)
		})
	}
}

func TestFilterCustomWords(t *testing.T) {
	f := NewFilter([]string{"Basically", "you know", "basically", " "})
	assert.Len(t, f.FillerWords(), 2)

	got, ok := f.Clean("basically it works you know")
	assert.True(t, ok)
	assert.Equal(t, "it works", got)

	f.SetFillerWords(nil)
	got, _ = f.Clean("um basically")
	assert.Equal(t, "um basically", got)
}

func TestFilterResponse(t *testing.T) {
	f := NewFilter(nil)

	resp := &TranscribeResponse{Text: "um play the song"}
	assert.True(t, f.FilterResponse(resp))
	assert.Equal(t, "play the song", resp.Text)

	resp = &TranscribeResponse{Text: "hmm"}
	assert.False(t, f.FilterResponse(resp))
	assert.True(t, f.IsFillerOnly("uh, um"))
	assert.False(t, f.FilterResponse(nil))
}
