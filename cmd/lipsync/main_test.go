package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/avatar3d"
	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/logging"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

// testConfig writes a quiet configuration into a fresh directory.
func testConfig(t *testing.T, edit func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Log.Dir = ""
	cfg.Log.Console = false
	cfg.Store.Dir = filepath.Join(dir, "audios")
	cfg.Lipsync.WorkDir = t.TempDir()
	if edit != nil {
		edit(cfg)
	}
	require.NoError(t, config.SaveTo(dir, cfg))
	return dir
}

func TestAlignCommand(t *testing.T) {
	scripts := t.TempDir()
	rhubarb := filepath.Join(scripts, "rhubarb")
	require.NoError(t, os.WriteFile(rhubarb, []byte(`#!/bin/sh
cat > "$4" <<'JSON'
{"metadata": {"duration": 0.6}, "mouthCues": [{"start": 0, "end": 0.3, "value": "B"}, {"start": 0.3, "end": 0.6, "value": "X"}]}
JSON
`), 0755))

	dir := testConfig(t, func(cfg *config.Config) { cfg.Lipsync.RhubarbPath = rhubarb })

	wav, err := audio.EncodeWAV(&audio.PCM{Data: make([]byte, 9600), SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	wavPath := filepath.Join(t.TempDir(), "hello.wav")
	require.NoError(t, os.WriteFile(wavPath, wav, 0644))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"align", "--config", dir, wavPath})
	require.NoError(t, cmd.Execute())

	var tl utterance.Timeline
	require.NoError(t, json.Unmarshal(out.Bytes(), &tl))
	assert.Equal(t, 2, tl.Len())
	assert.Equal(t, utterance.Symbol("B"), tl.At(0).Value)
}

func TestAlignMissingFile(t *testing.T) {
	dir := testConfig(t, nil)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"align", "--config", dir, filepath.Join(dir, "nope.wav")})
	assert.Error(t, cmd.Execute())
}

func TestNewRuntime(t *testing.T) {
	dir := testConfig(t, nil)
	cfg, err := config.LoadFrom(dir)
	require.NoError(t, err)

	logs, err := logging.New(&logging.Config{Level: logging.LevelError})
	require.NoError(t, err)
	defer logs.Close()

	rt, err := newRuntime(cfg, logs)
	require.NoError(t, err)
	defer rt.Close()

	assert.IsType(t, avatar3d.ChannelLayout{}, rt.layout)
	assert.NotNil(t, rt.store)
	assert.NotNil(t, rt.stt)
	assert.Equal(t, 60, rt.animator.FPS())

	health := rt.health(context.Background())
	assert.Contains(t, health, "elevenlabs")
	assert.Contains(t, health, "sarvam")
	assert.Contains(t, health, "stt:whisper")

	// nothing queued, so the queue is already drained
	require.NoError(t, waitDrained(context.Background(), rt.synchronizer))
}

func TestNewRuntimeRejectsUnknownDevice(t *testing.T) {
	dir := testConfig(t, func(cfg *config.Config) { cfg.Playback.Device = "speaker" })
	cfg, err := config.LoadFrom(dir)
	require.NoError(t, err)

	logs, err := logging.New(&logging.Config{Level: logging.LevelError})
	require.NoError(t, err)
	defer logs.Close()

	_, err = newRuntime(cfg, logs)
	assert.ErrorContains(t, err, "unknown playback device")
}
