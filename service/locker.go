package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
)

// ErrPairBusy is returned when another writer holds the company/app pair.
var ErrPairBusy = errors.New("contract is being modified by another request")

// PairLocker serializes writes to the contract of one company/app pair.
type PairLocker interface {
	Lock(ctx context.Context, companyID, appID string) (unlock func(), err error)
}

// NopLocker never blocks. The unique index on the pair still rejects a
// duplicate insert.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, string, string) (func(), error) {
	return func() {}, nil
}

// RedisLocker holds a redis lock per pair for the duration of a write.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	logger  *slog.Logger
}

func NewRedisLocker(rdb redislock.RedisClient, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		retries: 20,
		logger:  logger,
	}
}

func lockKey(companyID, appID string) string {
	return fmt.Sprintf("lock:contract:%s:%s", companyID, appID)
}

func (l *RedisLocker) Lock(ctx context.Context, companyID, appID string) (func(), error) {
	key := lockKey(companyID, appID)
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), l.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Warn("could not obtain contract lock", "key", key)
		return nil, ErrPairBusy
	}
	if err != nil {
		l.logger.Error("error obtaining contract lock", "key", key, "error", err)
		return nil, fmt.Errorf("obtain lock: %w", err)
	}

	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("failed to release contract lock", "key", key, "error", err)
		}
	}, nil
}
