package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/transcode"
)

// RedisStore keeps documents as base64 text values under
// <Prefix><base>_<timestamp> keys. Keys are claimed with SETNX, so an id
// once handed out is never overwritten.
type RedisStore struct {
	Prefix string
	TTL    time.Duration // zero keeps entries forever
	Now    func() time.Time
	Logger observability.Logger

	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the server at addr. The connection is checked
// with PING.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis %s: %w", addr, err)
	}
	return &RedisStore{Prefix: "pdfstudio:", client: client}, nil
}

func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	value := transcode.Encode(data)
	t := now(s.Now)
	for n := 1; n <= maxAttempts; n++ {
		id := s.Prefix + candidate(name, t, n)
		ok, err := s.client.SetNX(ctx, id, value, s.TTL).Result()
		if err != nil {
			return "", fmt.Errorf("store: redis set %s: %w", id, err)
		}
		if !ok {
			continue
		}
		observability.OrNop(s.Logger).Debug("stored document",
			observability.String("key", id),
			observability.Int("bytes", len(data)),
		)
		return id, nil
	}
	return "", fmt.Errorf("store: no free key for %q", name)
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	val, err := s.client.Get(ctx, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get %s: %w", id, err)
	}
	return transcode.Decode(val)
}

// Delete removes id. Deleting a missing id is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, id).Err()
}
