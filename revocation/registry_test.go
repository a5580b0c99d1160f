package revocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	putErr  error
	getErr  error
	putHits int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]Record{}}
}

func (s *memoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putHits++
	if s.putErr != nil {
		return s.putErr
	}
	s.records[rec.JTI] = rec
	return nil
}

func (s *memoryStore) Get(_ context.Context, jti string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[jti]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for jti, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, jti)
			purged++
		}
	}
	return purged, nil
}

func newTestRegistry(t *testing.T) (*Registry, *memoryStore, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	durable := newMemoryStore()
	reg := New(rdb, durable, Config{RetryInitial: time.Millisecond}, nil)

	return reg, durable, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRevokeWritesBothStores(t *testing.T) {
	reg, durable, mr, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	if err := reg.Revoke(ctx, "j1", "refresh", expiry); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if !mr.Exists("revocation:j1") {
		t.Fatal("expected cache entry")
	}
	ttl := mr.TTL("revocation:j1")
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected TTL derived from token expiry, got %s", ttl)
	}
	if rec, _ := durable.Get(ctx, "j1"); rec == nil || rec.Kind != "refresh" {
		t.Fatalf("expected durable record, got %+v", rec)
	}

	revoked, err := reg.IsRevoked(ctx, "j1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked=true, got %v %v", revoked, err)
	}
}

func TestRevokeSkipsExpiredToken(t *testing.T) {
	reg, durable, mr, done := newTestRegistry(t)
	defer done()

	if err := reg.Revoke(context.Background(), "old", "access", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if mr.Exists("revocation:old") {
		t.Fatal("expired token must not create a cache entry")
	}
	if rec, _ := durable.Get(context.Background(), "old"); rec != nil {
		t.Fatal("expired token must not create a durable record")
	}
}

func TestIsRevokedHealsCacheFromDurable(t *testing.T) {
	reg, durable, mr, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	expiry := time.Now().Add(30 * time.Minute)
	if err := durable.Put(ctx, Record{JTI: "j2", Kind: "refresh", ExpiresAt: expiry}); err != nil {
		t.Fatalf("seed durable failed: %v", err)
	}

	// Cold cache: the durable record is authoritative.
	revoked, err := reg.IsRevoked(ctx, "j2")
	if err != nil || !revoked {
		t.Fatalf("expected revoked via durable fallback, got %v %v", revoked, err)
	}

	// The lookup must have re-populated the cache with the remaining TTL.
	if !mr.Exists("revocation:j2") {
		t.Fatal("expected cache healed after durable hit")
	}
	if ttl := mr.TTL("revocation:j2"); ttl <= 0 || ttl > 30*time.Minute {
		t.Fatalf("healed TTL out of range: %s", ttl)
	}
}

func TestIsRevokedIgnoresExpiredDurableRecord(t *testing.T) {
	reg, durable, _, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	_ = durable.Put(ctx, Record{JTI: "j3", Kind: "access", ExpiresAt: time.Now().Add(-time.Second)})

	revoked, err := reg.IsRevoked(ctx, "j3")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Fatal("expired durable record must not report revoked")
	}
}

func TestIsRevokedFailSecureOnCacheOutage(t *testing.T) {
	reg, _, mr, done := newTestRegistry(t)
	defer done()

	mr.Close()

	revoked, err := reg.IsRevoked(context.Background(), "whatever")
	if !revoked {
		t.Fatal("cache outage must report revoked, never admit")
	}
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestIsRevokedFailSecureOnDurableOutage(t *testing.T) {
	reg, durable, _, done := newTestRegistry(t)
	defer done()

	durable.getErr = errors.New("connection refused")

	revoked, err := reg.IsRevoked(context.Background(), "j4")
	if !revoked {
		t.Fatal("durable outage on cache miss must report revoked")
	}
	if !errors.Is(err, ErrDurableUnavailable) {
		t.Fatalf("expected ErrDurableUnavailable, got %v", err)
	}
}

func TestRevokeIfAbsentSingleWinner(t *testing.T) {
	reg, _, _, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	first, err := reg.RevokeIfAbsent(ctx, "j5", "refresh", expiry)
	if err != nil {
		t.Fatalf("first RevokeIfAbsent failed: %v", err)
	}
	if !first {
		t.Fatal("first caller must win")
	}

	second, err := reg.RevokeIfAbsent(ctx, "j5", "refresh", expiry)
	if err != nil {
		t.Fatalf("second RevokeIfAbsent failed: %v", err)
	}
	if second {
		t.Fatal("second caller must observe the already-revoked path")
	}
}

func TestRevokeIfAbsentConcurrent(t *testing.T) {
	reg, _, _, done := newTestRegistry(t)
	defer done()

	expiry := time.Now().Add(time.Hour)
	const racers = 16

	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := reg.RevokeIfAbsent(context.Background(), "race", "refresh", expiry)
			if err != nil {
				t.Errorf("RevokeIfAbsent failed: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestRevokeRetriesDurableWrites(t *testing.T) {
	reg, durable, _, done := newTestRegistry(t)
	defer done()

	durable.putErr = errors.New("deadlock detected")

	err := reg.Revoke(context.Background(), "j6", "refresh", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrDurableUnavailable) {
		t.Fatalf("expected ErrDurableUnavailable, got %v", err)
	}
	if durable.putHits < 3 {
		t.Fatalf("expected at least 3 attempts before surfacing, got %d", durable.putHits)
	}
}

func TestPurgeExpired(t *testing.T) {
	reg, durable, _, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	_ = durable.Put(ctx, Record{JTI: "live", Kind: "refresh", ExpiresAt: time.Now().Add(time.Hour)})
	_ = durable.Put(ctx, Record{JTI: "dead1", Kind: "access", ExpiresAt: time.Now().Add(-time.Minute)})
	_ = durable.Put(ctx, Record{JTI: "dead2", Kind: "refresh", ExpiresAt: time.Now().Add(-time.Hour)})

	purged, err := reg.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged, got %d", purged)
	}
	if rec, _ := durable.Get(ctx, "live"); rec == nil {
		t.Fatal("live record must survive the purge")
	}
}
