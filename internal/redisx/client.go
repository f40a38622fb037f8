package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Store is a best-effort cache: Postgres stays the source of truth, so
// Redis errors are logged and reported as misses.
type Store struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewStore(rdb *redis.Client, log zerolog.Logger) *Store {
	return &Store{rdb: rdb, log: log.With().Str("component", "redis").Logger()}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return nil, false
	}
	return b, true
}

func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := s.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Claim sets key only if it is absent and reports whether this call set it.
// When Redis is unreachable every claim succeeds, so duplicates get through
// rather than events getting dropped.
func (s *Store) Claim(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := s.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache claim failed")
		return true
	}
	return ok
}

// Noop is used when REDIS_ADDR is not configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (Noop) Set(context.Context, string, []byte, time.Duration) {}

func (Noop) Claim(context.Context, string, time.Duration) bool { return true }
