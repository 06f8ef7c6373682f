package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store on Redis, for sharing one cache between processes.
//
//	<base>:entries  hash  fp -> result JSON
//	<base>:order    zset  fp scored by insertion sequence
//	<base>:seq      counter
type RedisStore struct {
	client  *redis.Client
	keyBase string
}

// NewRedisStore wraps an existing client. keyBase namespaces all keys.
func NewRedisStore(client *redis.Client, keyBase string) *RedisStore {
	if keyBase == "" {
		keyBase = "translationCache"
	}
	return &RedisStore{client: client, keyBase: keyBase}
}

// DialRedisStore connects to redisURL and verifies the connection.
func DialRedisStore(ctx context.Context, redisURL, keyBase string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, keyBase), nil
}

func (s *RedisStore) entriesKey() string { return s.keyBase + ":entries" }
func (s *RedisStore) orderKey() string   { return s.keyBase + ":order" }
func (s *RedisStore) seqKey() string     { return s.keyBase + ":seq" }

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.HGet(ctx, s.entriesKey(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("hget %s: %w", key, err)
	}
	return val, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.client.ZScore(ctx, s.orderKey(), key).Result()
	switch {
	case err == nil:
		// Existing key keeps its insertion position.
		if err := s.client.HSet(ctx, s.entriesKey(), key, value).Err(); err != nil {
			return fmt.Errorf("hset %s: %w", key, err)
		}
		return nil
	case !errors.Is(err, redis.Nil):
		return fmt.Errorf("zscore %s: %w", key, err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("incr seq: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.entriesKey(), key, value)
		pipe.ZAdd(ctx, s.orderKey(), redis.Z{Score: float64(seq), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.entriesKey(), key)
		pipe.ZRem(ctx, s.orderKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.orderKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard: %w", err)
	}
	return int(n), nil
}

// Oldest implements Store.
func (s *RedisStore) Oldest(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	keys, err := s.client.ZRange(ctx, s.orderKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange: %w", err)
	}
	return keys, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.entriesKey(), s.orderKey(), s.seqKey()).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
