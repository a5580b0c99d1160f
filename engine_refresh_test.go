package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"

	internalmetrics "github.com/dhirajgiri3/authcore/internal/metrics"
)

func TestRotateIssuesNewPair(t *testing.T) {
	store := newFakePrincipalStore()
	seedPrincipal(t, store, "u1")

	engine, _, _, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()

	result, err := engine.Login(ctx, "u1@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	pair, err := engine.Rotate(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if pair.RefreshToken == result.RefreshToken {
		t.Fatal("rotation must mint a fresh refresh token")
	}

	if _, err := engine.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("new access token should validate: %v", err)
	}
}

// Replay scenario: the first rotation of a refresh token succeeds; a
// second presentation of the same token is denied, revokes the whole
// family, and the pair minted by the first rotation dies with it.
func TestRotateReplayRevokesFamily(t *testing.T) {
	store := newFakePrincipalStore()
	seedPrincipal(t, store, "u1")

	engine, _, _, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()

	result, err := engine.Login(ctx, "u1@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	pair, err := engine.Rotate(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}

	if _, err := engine.Rotate(ctx, result.RefreshToken); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected replay to be denied, got %v", err)
	}
	if got := store.versionOf("u1"); got != 2 {
		t.Fatalf("expected token version 2 after replay, got %d", got)
	}

	// The successor pair was minted at version 1 and must be dead.
	if _, err := engine.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected successor refresh to be denied, got %v", err)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected successor access to be denied, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[internalmetrics.ReplayDetected] == 0 {
		t.Fatal("expected replay counter to advance")
	}
}

func TestRotateReplayCaughtAfterCacheFlush(t *testing.T) {
	store := newFakePrincipalStore()
	seedPrincipal(t, store, "u1")

	engine, mr, _, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()

	result, err := engine.Login(ctx, "u1@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Rotate(ctx, result.RefreshToken); err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}

	// Simulate total cache loss; the durable record must still block the
	// replay through the read-through heal.
	mr.FlushAll()

	if _, err := engine.Rotate(ctx, result.RefreshToken); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected replay to be caught from durable store, got %v", err)
	}
	if got := store.versionOf("u1"); got != 2 {
		t.Fatalf("expected family revocation after healed replay, got version %d", got)
	}
}

func TestRotateOutageReturnsDependencyErrorWithoutEscalation(t *testing.T) {
	store := newFakePrincipalStore()
	seedPrincipal(t, store, "u1")

	engine, mr, _, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()

	result, err := engine.Login(ctx, "u1@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	mr.Close()

	if _, err := engine.Rotate(ctx, result.RefreshToken); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	// An outage is not evidence of theft; the family stays alive.
	if got := store.versionOf("u1"); got != 1 {
		t.Fatalf("expected no version bump during outage, got %d", got)
	}
}

func TestRotateDurableOutageDeniesWithoutMinting(t *testing.T) {
	store := newFakePrincipalStore()
	seedPrincipal(t, store, "u1")

	engine, _, durable, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()

	result, err := engine.Login(ctx, "u1@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	durable.mu.Lock()
	durable.putErr = errors.New("connection refused")
	durable.mu.Unlock()

	if _, err := engine.Rotate(ctx, result.RefreshToken); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if got := store.versionOf("u1"); got != 1 {
		t.Fatalf("expected no version bump on durable outage, got %d", got)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	store := newFakePrincipalStore()
	seedPrincipal(t, store, "u1")

	engine, _, _, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()

	result, err := engine.Login(ctx, "u1@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	outcomes := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Rotate(ctx, result.RefreshToken)
			outcomes <- err
		}()
	}
	wg.Wait()
	close(outcomes)

	var wins, denials int
	for err := range outcomes {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotAuthorized):
			denials++
		default:
			t.Fatalf("unexpected rotation outcome: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", wins)
	}
	if denials != workers-1 {
		t.Fatalf("expected %d denials, got %d", workers-1, denials)
	}
}

func TestRotateRejectsAccessTokenAsRefresh(t *testing.T) {
	store := newFakePrincipalStore()
	seedPrincipal(t, store, "u1")

	engine, _, _, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()

	result, err := engine.Login(ctx, "u1@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := engine.Rotate(ctx, result.AccessToken); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected access-as-refresh to be denied, got %v", err)
	}
}
