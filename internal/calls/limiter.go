package calls

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"calling-center/pkg/utils"
)

// Limiter bounds the number of live outbound calls.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisLimiter shares one counter across every process pointed at the same Redis.
type RedisLimiter struct {
	rdb   *redis.Client
	key   string
	limit int
	// ttl bounds slots leaked by calls whose terminal callback never arrives.
	ttl time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, errors.New("calls: redis client required")
	}
	if limit <= 0 {
		return nil, errors.New("calls: limit must be > 0")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisLimiter{rdb: rdb, key: utils.CapKey("outbound-calls"), limit: limit, ttl: ttl}, nil
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key)
}
