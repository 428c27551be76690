package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore holds the connection backing the delivery queue sorted set,
// per-subscription rate limiter windows, and circuit breaker state. All of
// that state is reconstructible: the queue from pending ledger rows, the
// limiter and breaker from live traffic, so losing Redis never loses a
// delivery.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects and pings so a bad REDIS_URL fails at startup rather
// than on the first enqueue.
func NewRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the raw connection for the queue, rate limiter, and
// circuit breaker, which manage their own key schemas.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
