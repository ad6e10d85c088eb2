package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // prepended to slot names, default "debtflow:"
	TTL      time.Duration // 0 keeps drafts until deleted
}

// RedisBackend stores each slot under its own key.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// OpenRedis connects and pings the server; an unreachable server is an error
// rather than a silently disabled cache.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis backend: address required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "debtflow:"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisBackend{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (b *RedisBackend) Name() string { return BackendRedis }
func (b *RedisBackend) Close() error { return b.rdb.Close() }

func (b *RedisBackend) Slot(name string) Slot {
	return &redisSlot{backend: b, key: b.prefix + name}
}

type redisSlot struct {
	backend *RedisBackend
	key     string
}

func (s *redisSlot) Load(ctx context.Context) ([]byte, error) {
	data, err := s.backend.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.key, err)
	}
	return data, nil
}

func (s *redisSlot) Save(ctx context.Context, data []byte) error {
	if err := s.backend.rdb.Set(ctx, s.key, data, s.backend.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", s.key, err)
	}
	return nil
}

func (s *redisSlot) Delete(ctx context.Context) error {
	if err := s.backend.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", s.key, err)
	}
	return nil
}
