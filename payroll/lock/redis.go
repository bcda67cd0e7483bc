package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL     = 10 * time.Second
	defaultBackoff = 50 * time.Millisecond
)

// ErrNotObtained is returned when the lock stays taken for the whole retry budget.
var ErrNotObtained = errors.New("lock not obtained")

// Redis is a payroll.Locker shared by every instance pointing at the same
// Redis. Keys are prefixed with "lock:" and expire after TTL, so a crashed
// holder never blocks an employee forever.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	logger  logrus.FieldLogger
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration, logger logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Redis{
		client:  redislock.New(rdb),
		ttl:     ttl,
		retries: int(ttl / defaultBackoff),
		logger:  logger,
	}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *Redis) retryStrategy() redislock.RetryStrategy {
	return redislock.LimitRetry(redislock.LinearBackoff(defaultBackoff), r.retries)
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "lock:" + key
	lck, err := r.client.Obtain(ctx, lockKey, r.ttl, &redislock.Options{
		RetryStrategy: r.retryStrategy(),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, lockKey)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain %s: %w", lockKey, err)
	}

	return func() {
		// Release on a fresh context: the request context may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lck.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.WithFields(logrus.Fields{
				"key":   lockKey,
				"error": err.Error(),
			}).Warn("failed to release lock")
		}
	}, nil
}
