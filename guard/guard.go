// Package guard tracks failed authentication attempts per key and
// imposes a time-boxed lockout after a threshold. Counters live in the
// shared cache, never in process memory, so multiple stateless engine
// instances see the same lockout state.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel separates independent failure budgets. Login passwords and
// one-time codes use independent keys and independent thresholds.
type Channel string

const (
	// ChannelLogin guards password attempts.
	ChannelLogin Channel = "login"
	// ChannelOTP guards one-time-code attempts.
	ChannelOTP Channel = "otp"
)

// ErrGuardUnavailable indicates the counter backend is unreachable.
var ErrGuardUnavailable = errors.New("guard backend unavailable")

// Policy is the threshold and window for one channel.
type Policy struct {
	MaxFailures int
	Duration    time.Duration
}

// Config holds per-channel policies and the cache key prefix.
type Config struct {
	KeyPrefix string
	Login     Policy
	OTP       Policy
}

// Guard is the brute-force guard. Safe for concurrent use.
type Guard struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Guard backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Guard {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "bfg"
	}
	return &Guard{redis: redisClient, config: cfg}
}

func (g *Guard) policy(channel Channel) Policy {
	if channel == ChannelOTP {
		return g.config.OTP
	}
	return g.config.Login
}

func (g *Guard) key(channel Channel, key string) string {
	return g.config.KeyPrefix + ":" + string(channel) + ":" + key
}

// RecordFailure increments the failure counter for the key. The first
// failure in a window starts the TTL, so the counter self-resets after
// the lockout duration. Returns true once the threshold is reached.
func (g *Guard) RecordFailure(ctx context.Context, channel Channel, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	k := g.key(channel, key)
	count, err := g.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	if count == 1 {
		if err := g.redis.Expire(ctx, k, g.policy(channel).Duration).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
		}
	}
	return count >= int64(g.policy(channel).MaxFailures), nil
}

// IsLocked reports whether the key's failure budget is exhausted and,
// when it is, how long until the window expires. Checked before the
// costly verification so locked attackers never reach a password compare
// or code lookup. A missing counter means not locked; the answer never
// depends on whether the account behind the key exists.
func (g *Guard) IsLocked(ctx context.Context, channel Channel, key string) (bool, time.Duration, error) {
	if key == "" {
		return false, 0, nil
	}

	k := g.key(channel, key)
	count, err := g.redis.Get(ctx, k).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	if count < int64(g.policy(channel).MaxFailures) {
		return false, 0, nil
	}

	retryAfter, err := g.redis.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	if retryAfter < 0 {
		retryAfter = g.policy(channel).Duration
	}
	return true, retryAfter, nil
}

// RecordSuccess clears the failure counter for the key.
func (g *Guard) RecordSuccess(ctx context.Context, channel Channel, key string) error {
	if key == "" {
		return nil
	}
	if err := g.redis.Del(ctx, g.key(channel, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	return nil
}

// FailureCount returns the current counter value. Missing keys return
// zero and do not reveal account existence.
func (g *Guard) FailureCount(ctx context.Context, channel Channel, key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	count, err := g.redis.Get(ctx, g.key(channel, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}
