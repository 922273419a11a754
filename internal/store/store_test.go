package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
)

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc-123", Clip{Data: []byte("mp3-bytes"), Format: audio.FormatMP3}))
	assert.FileExists(t, filepath.Join(dir, "message_abc-123.mp3"))

	clip, err := s.Get(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), clip.Data)
	assert.Equal(t, audio.FormatMP3, clip.Format)

	// Replacing with another format leaves a single file.
	require.NoError(t, s.Put(ctx, "abc-123", Clip{Data: []byte("wav-bytes"), Format: audio.FormatWAV}))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Delete(ctx, "abc-123"))
	_, err = s.Get(ctx, "abc-123")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "abc-123"))
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = s.Put(context.Background(), "../escape", Clip{Data: []byte("x"), Format: audio.FormatWAV})
	assert.Error(t, err)
	_, err = s.Get(context.Background(), "")
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(config.StoreConfig{Backend: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(config.StoreConfig{Backend: "s3"})
	assert.Error(t, err)
}

func setupRedisStore(t *testing.T) *RedisStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	s, err := NewRedisStore(RedisConfig{Addr: addr, TTL: time.Minute, Prefix: "lipsync:test:"})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return s
}

func TestRedisStore(t *testing.T) {
	s := setupRedisStore(t)
	defer s.Close()
	ctx := context.Background()
	id := "redis-test-" + time.Now().Format("150405")

	defer s.Delete(ctx, id)

	require.NoError(t, s.Put(ctx, id, Clip{Data: []byte{0, 1, 2, 255}, Format: audio.FormatWAV}))

	clip, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 255}, clip.Data)
	assert.Equal(t, audio.FormatWAV, clip.Format)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}
