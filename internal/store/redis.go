package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/normanking/cortexlipsync/internal/audio"
)

// RedisConfig holds configuration for the Redis store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// RedisStore keeps audio in a Redis hash per utterance with a TTL.
type RedisStore struct {
	rdb *redis.Client
	cfg RedisConfig
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb, cfg: cfg}, nil
}

func (s *RedisStore) key(id string) string {
	return s.cfg.Prefix + id
}

// Put stores the clip, refreshing its TTL.
func (s *RedisStore) Put(ctx context.Context, id string, clip Clip) error {
	if err := validID(id); err != nil {
		return err
	}
	key := s.key(id)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "format", string(clip.Format), "audio", clip.Data)
		if s.cfg.TTL > 0 {
			pipe.Expire(ctx, key, s.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Get loads the clip for id.
func (s *RedisStore) Get(ctx context.Context, id string) (Clip, error) {
	if err := validID(id); err != nil {
		return Clip{}, err
	}
	vals, err := s.rdb.HMGet(ctx, s.key(id), "format", "audio").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Clip{}, ErrNotFound
		}
		return Clip{}, fmt.Errorf("redis get: %w", err)
	}
	if len(vals) != 2 || vals[1] == nil {
		return Clip{}, ErrNotFound
	}

	format, _ := vals[0].(string)
	data, _ := vals[1].(string)
	return Clip{Data: []byte(data), Format: audio.Format(format)}, nil
}

// Delete removes the clip for id.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
