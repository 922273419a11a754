package lipsync

import (
	"errors"
	"fmt"

	"github.com/normanking/cortexlipsync/internal/audio"
)

var (
	ErrTranscode        = errors.New("transcode failed")
	ErrAlignment        = errors.New("alignment failed")
	ErrAlignmentTimeout = errors.New("alignment timed out")
)

// TranscodeError means the audio could not be turned into aligner input.
type TranscodeError struct {
	Format audio.Format
	Err    error
}

func (e *TranscodeError) Error() string {
	format := string(e.Format)
	if format == "" {
		format = "unknown"
	}
	return fmt.Sprintf("transcode %s to wav: %v", format, e.Err)
}

func (e *TranscodeError) Unwrap() []error {
	return []error{ErrTranscode, e.Err}
}

// AlignmentError means the aligner exited abnormally or wrote unusable output.
type AlignmentError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *AlignmentError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("rhubarb (exit %d): %v: %s", e.ExitCode, e.Err, e.Stderr)
	}
	return fmt.Sprintf("rhubarb (exit %d): %v", e.ExitCode, e.Err)
}

func (e *AlignmentError) Unwrap() []error {
	return []error{ErrAlignment, e.Err}
}

// TimelineInvariantViolation means the aligner produced cues that are
// unsorted, overlapping, out of bounds or outside the mouth-shape alphabet.
// It is handled like any other alignment failure.
type TimelineInvariantViolation struct {
	Index  int
	Reason string
}

func (e *TimelineInvariantViolation) Error() string {
	return fmt.Sprintf("invalid timeline at cue %d: %s", e.Index, e.Reason)
}

func (e *TimelineInvariantViolation) Unwrap() error {
	return ErrAlignment
}

// failureKind labels an extraction error for metrics and events.
func failureKind(err error) string {
	var violation *TimelineInvariantViolation
	switch {
	case errors.Is(err, ErrAlignmentTimeout):
		return "timeout"
	case errors.As(err, &violation):
		return "invariant"
	case errors.Is(err, ErrTranscode):
		return "transcode"
	case errors.Is(err, ErrAlignment):
		return "alignment"
	}
	return "other"
}
