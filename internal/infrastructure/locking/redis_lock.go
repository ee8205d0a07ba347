package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/pkg/logging"
)

// RedisLockOptions configures the redsync mutexes
type RedisLockOptions struct {
	Prefix      string
	Expiry      time.Duration
	Tries       int
	RetryDelay  time.Duration
	DriftFactor float64
}

// DefaultRedisLockOptions returns defaults sized for single position mutations
func DefaultRedisLockOptions() RedisLockOptions {
	return RedisLockOptions{
		Prefix:      "disposition:lock:",
		Expiry:      10 * time.Second,
		Tries:       20,
		RetryDelay:  100 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// RedisLocker is a distributed lock shared by every replica of the service
type RedisLocker struct {
	redsync *redsync.Redsync
	opts    RedisLockOptions
	logger  *logging.Logger
}

// NewRedisLocker creates a RedisLocker on top of client
func NewRedisLocker(client redis.UniversalClient, opts RedisLockOptions, logger *logging.Logger) *RedisLocker {
	return &RedisLocker{
		redsync: redsync.New(goredis.NewPool(client)),
		opts:    opts,
		logger:  logger.WithComponent("redis-locker"),
	}
}

// WithLock runs fn while holding a redsync mutex for every key
func (l *RedisLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = normalizeKeys(keys)
	held := make([]*redsync.Mutex, 0, len(keys))

	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			if ok, err := held[i].UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
				l.logger.Warn("Failed to release lock", "key", held[i].Name(), "error", err)
			}
		}
	}()

	for _, key := range keys {
		mutex := l.redsync.NewMutex(
			l.opts.Prefix+key,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay),
			redsync.WithDriftFactor(l.opts.DriftFactor),
		)

		if err := mutex.LockContext(ctx); err != nil {
			return fmt.Errorf("%w: acquire lock %s: %v", domain.ErrConcurrentModification, key, err)
		}
		held = append(held, mutex)
	}

	return fn(ctx)
}
