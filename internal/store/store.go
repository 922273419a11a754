// Package store keeps synthesized audio keyed by utterance id so the
// extractor, the HTTP surface and playback can reuse it.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
)

// ErrNotFound is returned when no audio exists for an id.
var ErrNotFound = errors.New("audio not found")

// Clip is stored audio plus its encoding.
type Clip struct {
	Data   []byte
	Format audio.Format
}

// ContentStore persists audio by utterance id.
type ContentStore interface {
	Put(ctx context.Context, id string, clip Clip) error
	Get(ctx context.Context, id string) (Clip, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// New builds the store selected by cfg.Backend.
func New(cfg config.StoreConfig) (ContentStore, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "redis":
		return NewRedisStore(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Prefix:   cfg.Redis.Prefix,
		})
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func validID(id string) error {
	if id == "" {
		return errors.New("empty utterance id")
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("invalid utterance id %q", id)
		}
	}
	return nil
}
