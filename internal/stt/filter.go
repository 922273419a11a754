package stt

import (
	"regexp"
	"strings"
	"sync"
)

// DefaultFillerWords are hesitation sounds dropped before a transcript is spoken back.
var DefaultFillerWords = []string{
	"um", "uh", "uhh", "umm",
	"er", "ah", "hmm", "mm",
}

var (
	spacePattern = regexp.MustCompile(`\s+`)
	punctPattern = regexp.MustCompile(`^[.,!?;:\s]+$`)
	// punctuation left dangling in front of other punctuation after a removal
	orphanPattern = regexp.MustCompile(`\s*([,;:])\s*([.,!?;:])`)
)

// Filter strips filler words from transcripts.
type Filter struct {
	mu          sync.RWMutex
	fillerWords map[string]struct{}
	pattern     *regexp.Regexp
}

// NewFilter creates a filter. A nil list means DefaultFillerWords.
func NewFilter(fillerWords []string) *Filter {
	if fillerWords == nil {
		fillerWords = DefaultFillerWords
	}
	f := &Filter{}
	f.SetFillerWords(fillerWords)
	return f
}

// SetFillerWords replaces the filler word list.
func (f *Filter) SetFillerWords(words []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fillerWords = make(map[string]struct{}, len(words))
	patterns := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, dup := f.fillerWords[word]; dup {
			continue
		}
		f.fillerWords[word] = struct{}{}
		patterns = append(patterns, `\b`+regexp.QuoteMeta(word)+`\b`)
	}

	if len(patterns) == 0 {
		f.pattern = nil
		return
	}
	f.pattern = regexp.MustCompile(`(?i)(` + strings.Join(patterns, `|`) + `)`)
}

// FillerWords returns a copy of the current list.
func (f *Filter) FillerWords() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	words := make([]string, 0, len(f.fillerWords))
	for word := range f.fillerWords {
		words = append(words, word)
	}
	return words
}

// Clean removes filler words and normalizes whitespace. The boolean reports
// whether anything meaningful is left.
func (f *Filter) Clean(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	f.mu.RLock()
	pattern := f.pattern
	f.mu.RUnlock()

	cleaned := text
	if pattern != nil {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")
	cleaned = orphanPattern.ReplaceAllString(cleaned, "$2")
	cleaned = strings.TrimLeft(strings.TrimSpace(cleaned), ",;: ")

	if punctPattern.MatchString(cleaned) {
		cleaned = ""
	}
	return cleaned, cleaned != ""
}

// IsFillerOnly reports whether text has nothing but filler words.
func (f *Filter) IsFillerOnly(text string) bool {
	_, ok := f.Clean(text)
	return !ok
}

// FilterResponse cleans resp.Text in place and reports whether it should be kept.
func (f *Filter) FilterResponse(resp *TranscribeResponse) bool {
	if resp == nil {
		return false
	}
	cleaned, ok := f.Clean(resp.Text)
	resp.Text = cleaned
	return ok
}
