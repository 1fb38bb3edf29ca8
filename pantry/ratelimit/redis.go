// pantry/ratelimit/redis.go
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore counts requests in fixed windows of Rate.Period, shared by
// every instance using the same Redis.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisStore wraps an existing client. keyPrefix defaults to
// "formrelay:ratelimit:".
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "formrelay:ratelimit:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, now: time.Now}
}

// Allow increments the counter of the current window for key.
func (s *RedisStore) Allow(ctx context.Context, key string, r Rate) (Decision, error) {
	now := s.now()
	window := now.Truncate(r.Period)
	redisKey := s.keyPrefix + key + ":" + strconv.FormatInt(window.Unix(), 10)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, r.Period+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis: %w", err)
	}

	count := int(incr.Val())
	if count > r.Limit {
		return Decision{Allowed: false, RetryAfter: window.Add(r.Period).Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: r.Limit - count}, nil
}
