// Package throttle rate-limits login attempts before the authenticator runs,
// using Redis fixed-window counters keyed by tenant/username and by client
// IP. It is a pre-auth brute-force damper in front of the per-account lock,
// not a replacement for it.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrThrottled indicates the caller exceeded the attempt budget.
	ErrThrottled = errors.New("throttle: too many login attempts")

	// ErrUnavailable indicates the Redis backend is unreachable.
	ErrUnavailable = errors.New("throttle: backend unavailable")
)

// Config holds throttle tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	PerIP       bool
}

// Limiter enforces the login attempt budget.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// Allow reports whether another attempt for the account+IP pair fits the
// budget. Missing counters pass; they do not reveal account existence.
func (l *Limiter) Allow(ctx context.Context, tenantID, username, ip string) error {
	if err := l.checkCounter(ctx, accountKey(tenantID, username)); err != nil {
		return err
	}
	if l.config.PerIP && ip != "" {
		if err := l.checkCounter(ctx, ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// RecordFailure counts a failed attempt against the account+IP pair.
func (l *Limiter) RecordFailure(ctx context.Context, tenantID, username, ip string) error {
	if _, err := l.incrementWithTTL(ctx, accountKey(tenantID, username)); err != nil {
		return err
	}
	if l.config.PerIP && ip != "" {
		if _, err := l.incrementWithTTL(ctx, ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the counters after a successful login.
func (l *Limiter) Reset(ctx context.Context, tenantID, username, ip string) error {
	keys := []string{accountKey(tenantID, username)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, ipKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrThrottled
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Fixed-window semantics: TTL is set only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}

func accountKey(tenantID, username string) string {
	return "login:u:" + tenantID + ":" + username
}

func ipKey(ip string) string {
	return "login:ip:" + ip
}
