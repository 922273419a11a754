package lipsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

const helloCues = `{
  "metadata": {"soundFile": "message.wav", "duration": 0.9},
  "mouthCues": [
    {"start": 0.00, "end": 0.50, "value": "X"},
    {"start": 0.50, "end": 0.62, "value": "B"},
    {"start": 0.62, "end": 0.90, "value": "D"}
  ]
}`

// writeScript drops an executable shell script into dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

// fakeRhubarb writes output to the -o argument after checking its input is a WAV.
func fakeRhubarb(t *testing.T, output string) (path, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	body := `echo "$@" > "` + argsFile + `"
out="$4"
wav="$5"
[ "$(head -c 4 "$wav")" = "RIFF" ] || { echo "input is not a wav" >&2; exit 3; }
cat > "$out" <<'JSON'
` + output + `
JSON
`
	return writeScript(t, dir, "rhubarb", body), argsFile
}

func testWAV(t *testing.T) []byte {
	t.Helper()
	pcm := &audio.PCM{Data: make([]byte, 16000*2), SampleRate: 16000, Channels: 1}
	wav, err := audio.EncodeWAV(pcm)
	require.NoError(t, err)
	return wav
}

func newTestExtractor(t *testing.T, rhubarb string) (*Extractor, string) {
	t.Helper()
	work := t.TempDir()
	cfg := config.LipsyncConfig{
		RhubarbPath: rhubarb,
		Recognizer:  "phonetic",
		WorkDir:     work,
		Timeout:     5 * time.Second,
	}
	return NewExtractor(cfg, zerolog.Nop()), work
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dir should be cleaned up")
}

func TestExtractProducesTimeline(t *testing.T) {
	rhubarb, argsFile := fakeRhubarb(t, helloCues)
	ex, work := newTestExtractor(t, rhubarb)

	tl, err := ex.Extract(context.Background(), "utt-1", testWAV(t))
	require.NoError(t, err)

	require.Equal(t, 3, tl.Len())
	assert.Equal(t, utterance.Cue{Start: 0.5, End: 0.62, Value: utterance.SymbolB}, tl.At(1))
	assert.InDelta(t, 0.9, tl.Duration(), 1e-9)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	fields := strings.Fields(string(args))
	require.Len(t, fields, 7)
	assert.Equal(t, []string{"-f", "json", "-o"}, fields[:3])
	assert.True(t, strings.HasSuffix(fields[3], ".json"))
	assert.True(t, strings.HasSuffix(fields[4], ".wav"))
	assert.Equal(t, []string{"-r", "phonetic"}, fields[5:])

	assertEmptyDir(t, work)
}

func TestExtractTranscodesG711(t *testing.T) {
	rhubarb, _ := fakeRhubarb(t, helloCues)
	ex, work := newTestExtractor(t, rhubarb)

	ulaw := audio.EncodeMuLaw(make([]byte, 1600))
	tl, err := ex.ExtractFormat(context.Background(), "utt-2", ulaw, audio.FormatMuLaw)
	require.NoError(t, err)
	assert.Equal(t, 3, tl.Len())
	assertEmptyDir(t, work)
}

func TestExtractFallsBackToFFmpeg(t *testing.T) {
	rhubarb, _ := fakeRhubarb(t, helloCues)
	ex, work := newTestExtractor(t, rhubarb)

	prepared := filepath.Join(t.TempDir(), "prepared.wav")
	require.NoError(t, os.WriteFile(prepared, testWAV(t), 0644))
	// ffmpeg -y -i in -ac 1 -acodec pcm_s16le out
	ex.cfg.FFmpegPath = writeScript(t, t.TempDir(), "ffmpeg", `cp "`+prepared+`" "$8"`+"\n")

	ogg := append([]byte("OggS"), make([]byte, 64)...)
	tl, err := ex.Extract(context.Background(), "utt-3", ogg)
	require.NoError(t, err)
	assert.Equal(t, 3, tl.Len())
	assertEmptyDir(t, work)
}

func TestExtractTranscodeError(t *testing.T) {
	rhubarb, argsFile := fakeRhubarb(t, helloCues)
	ex, work := newTestExtractor(t, rhubarb)

	_, err := ex.Extract(context.Background(), "utt-4", []byte("not audio at all"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscode)

	var te *TranscodeError
	require.True(t, errors.As(err, &te))

	_, statErr := os.Stat(argsFile)
	assert.True(t, os.IsNotExist(statErr), "aligner must not run after a transcode failure")
	assertEmptyDir(t, work)

	_, err = ex.Extract(context.Background(), "utt-5", nil)
	assert.ErrorIs(t, err, ErrTranscode)
	assert.ErrorIs(t, err, audio.ErrEmptyAudio)
}

func TestExtractAlignmentFailure(t *testing.T) {
	rhubarb := writeScript(t, t.TempDir(), "rhubarb", "echo 'boom: model missing' >&2\nexit 2\n")
	ex, work := newTestExtractor(t, rhubarb)

	_, err := ex.Extract(context.Background(), "utt-6", testWAV(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlignment)

	var ae *AlignmentError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 2, ae.ExitCode)
	assert.Contains(t, ae.Stderr, "boom")
	assertEmptyDir(t, work)
}

func TestExtractMissingBinary(t *testing.T) {
	ex, _ := newTestExtractor(t, filepath.Join(t.TempDir(), "no-such-rhubarb"))

	_, err := ex.Extract(context.Background(), "utt-7", testWAV(t))
	assert.ErrorIs(t, err, ErrAlignment)
}

func TestExtractTimeout(t *testing.T) {
	rhubarb := writeScript(t, t.TempDir(), "rhubarb", "exec sleep 5\n")
	ex, work := newTestExtractor(t, rhubarb)
	ex.cfg.Timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := ex.Extract(context.Background(), "utt-8", testWAV(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlignmentTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
	assertEmptyDir(t, work)
}

func TestExtractInvariantViolation(t *testing.T) {
	overlapping := `{"mouthCues": [
    {"start": 0.0, "end": 0.5, "value": "A"},
    {"start": 0.4, "end": 0.9, "value": "B"}
  ]}`
	rhubarb, _ := fakeRhubarb(t, overlapping)
	ex, work := newTestExtractor(t, rhubarb)

	_, err := ex.Extract(context.Background(), "utt-9", testWAV(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlignment)

	var v *TimelineInvariantViolation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, 1, v.Index)
	assertEmptyDir(t, work)
}

func TestExtractKeepFailed(t *testing.T) {
	rhubarb := writeScript(t, t.TempDir(), "rhubarb", "exit 1\n")
	ex, work := newTestExtractor(t, rhubarb)
	ex.cfg.KeepFailed = true

	_, err := ex.Extract(context.Background(), "utt-10", testWAV(t))
	require.Error(t, err)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExtractCancelledContext(t *testing.T) {
	rhubarb, _ := fakeRhubarb(t, helloCues)
	ex, _ := newTestExtractor(t, rhubarb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ex.Extract(ctx, "utt-11", testWAV(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseTimeline(t *testing.T) {
	tl, err := ParseTimeline([]byte(`{"mouthCues": []}`))
	require.NoError(t, err)
	assert.Equal(t, 0, tl.Len())

	_, err = ParseTimeline([]byte(`{"metadata": {}}`))
	assert.ErrorIs(t, err, ErrAlignment)

	_, err = ParseTimeline([]byte(`{"mouthCues": [{"start": 0, "end": 1, "value": "Z"}]}`))
	var v *TimelineInvariantViolation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, 0, v.Index)

	_, err = ParseTimeline([]byte(`not json`))
	assert.ErrorIs(t, err, ErrAlignment)
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "timeout", failureKind(ErrAlignmentTimeout))
	assert.Equal(t, "invariant", failureKind(&TimelineInvariantViolation{}))
	assert.Equal(t, "transcode", failureKind(&TranscodeError{Err: audio.ErrEmptyAudio}))
	assert.Equal(t, "alignment", failureKind(&AlignmentError{Err: errors.New("x")}))
	assert.Equal(t, "other", failureKind(errors.New("x")))
}
