package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/normanking/cortexlipsync/internal/audio"
)

// FileStore writes audio to dir/message_<id>.<ext>.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string, format audio.Format) string {
	ext := string(format)
	if ext == "" {
		ext = "bin"
	}
	return filepath.Join(s.dir, fmt.Sprintf("message_%s.%s", id, ext))
}

// Put writes the clip, replacing any previous audio for id.
func (s *FileStore) Put(ctx context.Context, id string, clip Clip) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = s.Delete(ctx, id)

	tmp, err := os.CreateTemp(s.dir, "put-*")
	if err != nil {
		return fmt.Errorf("file store put: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(clip.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("file store put: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store put: %w", err)
	}
	return os.Rename(tmp.Name(), s.path(id, clip.Format))
}

// Get reads the clip stored for id.
func (s *FileStore) Get(ctx context.Context, id string) (Clip, error) {
	path, err := s.find(id)
	if err != nil {
		return Clip{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("file store get: %w", err)
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return Clip{Data: data, Format: audio.Format(ext)}, nil
}

// Delete removes the clip for id; a missing clip is not an error.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	path, err := s.find(id)
	if err != nil {
		return nil
	}
	return os.Remove(path)
}

func (s *FileStore) find(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, fmt.Sprintf("message_%s.*", id)))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", ErrNotFound
	}
	return matches[0], nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
