// Package revocation records token identifiers that must no longer be
// honored. Entries are dual-represented: a Redis cache entry whose TTL
// equals the token's remaining lifetime (the fast path), and a durable
// record holding only the expiry timestamp (recovery and audit). The two
// stores are reconciled read-through on cache miss, not transactionally.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheUnavailable indicates a cache transport failure, not a
	// miss. Lookups that hit this report the token as revoked.
	ErrCacheUnavailable = errors.New("revocation cache unavailable")
	// ErrDurableUnavailable indicates the durable store stayed
	// unreachable after the retry budget.
	ErrDurableUnavailable = errors.New("revocation store unavailable")
)

// Record is one revoked-token entry. A record never outlives the
// token's own expiry by more than the purge interval.
type Record struct {
	JTI       string
	Kind      string
	ExpiresAt time.Time
}

// DurableStore is the fallback store behind the cache. Get returns
// (nil, nil) when no record exists.
type DurableStore interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, jti string) (*Record, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Config tunes registry behavior.
type Config struct {
	KeyPrefix     string
	RetryAttempts uint64
	RetryInitial  time.Duration
}

// Registry is the revocation registry. Safe for concurrent use.
type Registry struct {
	redis   redis.UniversalClient
	durable DurableStore
	config  Config
	logger  *slog.Logger
}

// New creates a Registry over the given cache client and durable store.
func New(redisClient redis.UniversalClient, durable DurableStore, cfg Config, logger *slog.Logger) *Registry {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "revocation"
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{redis: redisClient, durable: durable, config: cfg, logger: logger}
}

func (r *Registry) key(jti string) string {
	return r.config.KeyPrefix + ":" + jti
}

// Revoke records the jti in both stores: cache first (TTL computed from
// the token's own expiry, never a fixed constant), then durable. Cache
// write failures are logged and tolerated because lookups fail secure;
// durable write failures are retried with exponential backoff before
// surfacing, since losing a revocation is the dangerous direction.
func (r *Registry) Revoke(ctx context.Context, jti, kind string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// The token can no longer verify on its own; nothing to record.
		return nil
	}

	if err := r.redis.Set(ctx, r.key(jti), kind, ttl).Err(); err != nil {
		r.logger.Warn("revocation cache write failed", "jti", jti, "error", err)
	}

	return r.putDurable(ctx, Record{JTI: jti, Kind: kind, ExpiresAt: expiresAt})
}

// RevokeIfAbsent is the atomic set-if-absent primitive behind rotation:
// of two racing revocations of the same jti, exactly one observes
// winner=true. The durable write happens only for the winner and must be
// acknowledged before the caller mints anything.
func (r *Registry) RevokeIfAbsent(ctx context.Context, jti, kind string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return false, nil
	}

	winner, err := r.redis.SetNX(ctx, r.key(jti), kind, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if !winner {
		return false, nil
	}

	if err := r.putDurable(ctx, Record{JTI: jti, Kind: kind, ExpiresAt: expiresAt}); err != nil {
		// The cache entry stays; a retry of the same rotation lands on
		// the already-revoked path, which denies rather than admits.
		return false, err
	}
	return true, nil
}

// IsRevoked reports whether the jti must no longer be honored.
//
// Cache hit: revoked. Cache miss: consult the durable store; a live
// record there re-populates the cache with the remaining TTL, healing
// cache loss transparently. A cache or durable transport failure is not
// a miss: the registry reports revoked=true alongside the error rather
// than risk admitting a token that should have been blocked.
func (r *Registry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := r.redis.Get(ctx, r.key(jti)).Result()
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, redis.Nil) {
		return true, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	rec, err := r.durable.Get(ctx, jti)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	if rec == nil {
		return false, nil
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return false, nil
	}
	if err := r.redis.Set(ctx, r.key(jti), rec.Kind, ttl).Err(); err != nil {
		r.logger.Warn("revocation cache heal failed", "jti", jti, "error", err)
	}
	return true, nil
}

// PurgeExpired deletes durable records whose expiry has passed. This is
// a maintenance operation, never part of the request path.
func (r *Registry) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := r.durable.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return purged, nil
}

// StartPurgeLoop runs PurgeExpired on the given interval until ctx is
// canceled. Failures are logged and the loop keeps running.
func (r *Registry) StartPurgeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if purged, err := r.PurgeExpired(ctx); err != nil {
					r.logger.Warn("revocation purge failed", "error", err)
				} else if purged > 0 {
					r.logger.Info("revocation purge completed", "purged", purged)
				}
			}
		}
	}()
}

func (r *Registry) putDurable(ctx context.Context, rec Record) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.config.RetryInitial

	op := func() error {
		return r.durable.Put(ctx, rec)
	}
	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, r.config.RetryAttempts-1), ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return nil
}
