// Package cache implements the read-through movie payload cache.  The redis
// backend is hidden behind a small interface so the read-through logic and
// the cleanup policy can be exercised without a running server.
package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Backend.Get when the key is absent.
var ErrMiss = errors.New("cache: key not found")

// TTL sentinels follow the redis convention surfaced by go-redis.
const (
	// TTLNone means the key exists but carries no expiry.
	TTLNone int64 = -1
	// TTLMissing means the key does not exist (or already expired).
	TTLMissing int64 = -2
)

// Stats is a snapshot of the backend's own hit/miss counters.  The numbers
// come from the cache server, not from counters this package maintains.
type Stats struct {
	TotalCommands  float64 `json:"total_commands"`
	KeyspaceHits   float64 `json:"keyspace_hits"`
	KeyspaceMisses float64 `json:"keyspace_misses"`
	HitRate        float64 `json:"hit_rate"`
}

// Backend is the key-value contract the movie cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	// TTLSeconds returns the remaining TTL in whole seconds, or one of the
	// TTLNone / TTLMissing sentinels.
	TTLSeconds(ctx context.Context, key string) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}

// NullBackend misses every lookup and swallows every write.  It stands in
// when redis is unreachable so the API keeps serving straight from TMDb.
type NullBackend struct{}

func (NullBackend) Get(context.Context, string) ([]byte, error)              { return nil, ErrMiss }
func (NullBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NullBackend) Del(context.Context, ...string) (int64, error)            { return 0, nil }
func (NullBackend) Keys(context.Context, string) ([]string, error)           { return nil, nil }
func (NullBackend) TTLSeconds(context.Context, string) (int64, error)        { return TTLMissing, nil }
func (NullBackend) Stats(context.Context) (Stats, error)                     { return Stats{}, nil }

// RedisBackend implements Backend on a go-redis client.
type RedisBackend struct{ rdb *redis.Client }

func NewRedisBackend(rdb *redis.Client) *RedisBackend { return &RedisBackend{rdb: rdb} }

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	bs, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return bs, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return b.rdb.Del(ctx, keys...).Result()
}

func (b *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	// SCAN instead of KEYS so the cleanup task does not block the server.
	var (
		out    []string
		cursor uint64
	)
	for {
		batch, next, err := b.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (b *RedisBackend) TTLSeconds(ctx context.Context, key string) (int64, error) {
	d, err := b.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// go-redis reports the redis sentinels as raw -1/-2 durations.
	if d < 0 {
		return int64(d), nil
	}
	return int64(d / time.Second), nil
}

// Stats parses the server's INFO stats section for the keyspace counters.
func (b *RedisBackend) Stats(ctx context.Context) (Stats, error) {
	info, err := b.rdb.Info(ctx, "stats").Result()
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, line := range strings.Split(info, "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		switch k {
		case "total_commands_processed":
			s.TotalCommands = n
		case "keyspace_hits":
			s.KeyspaceHits = n
		case "keyspace_misses":
			s.KeyspaceMisses = n
		}
	}
	if total := s.KeyspaceHits + s.KeyspaceMisses; total > 0 {
		s.HitRate = s.KeyspaceHits / total * 100
	}
	return s, nil
}
