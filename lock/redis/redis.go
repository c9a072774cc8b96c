// Package redis provides a lock.Locker backed by Redis, for deployments
// that run more than one engine instance against the same store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"

	"github.com/xraph/daybook/lock"
)

// Defaults.
const (
	DefaultTTL        = 30 * time.Second
	DefaultRetryDelay = 50 * time.Millisecond
	DefaultRetries    = 100
)

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets how long a lock lives if its holder dies.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

// WithRetry sets the linear retry policy used while waiting for a lock.
func WithRetry(delay time.Duration, attempts int) Option {
	return func(l *Locker) {
		l.delay = delay
		l.attempts = attempts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// Locker is a Redis-backed lock.Locker.
type Locker struct {
	client   *redislock.Client
	ttl      time.Duration
	delay    time.Duration
	attempts int
	logger   *slog.Logger
}

var _ lock.Locker = (*Locker)(nil)

// New wraps a go-redis client (or any redislock.RedisClient).
func New(client redislock.RedisClient, opts ...Option) *Locker {
	l := &Locker{
		client:   redislock.New(client),
		ttl:      DefaultTTL,
		delay:    DefaultRetryDelay,
		attempts: DefaultRetries,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithLock implements lock.Locker.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" {
		return lock.ErrEmptyKey
	}

	held, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.delay), l.attempts),
		Token:         uuid.NewString(),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s", lock.ErrNotObtained, key)
	}
	if err != nil {
		return fmt.Errorf("daybook/redis: obtain %s: %w", key, err)
	}
	defer func() {
		// Release with a fresh context so a cancelled caller does not leave
		// the key held until the TTL runs out.
		if relErr := held.Release(context.WithoutCancel(ctx)); relErr != nil && !errors.Is(relErr, redislock.ErrLockNotHeld) {
			l.logger.Warn("redis lock release failed", "key", key, "error", relErr)
		}
	}()

	return fn(ctx)
}
