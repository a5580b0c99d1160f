package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		RememberMeTTL: 30 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authcore-test",
	}
}

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testConfig())
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	return iss
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	iss := newTestIssuer(t)

	for _, kind := range []Kind{KindAccess, KindRefresh} {
		serialized, issued, err := iss.Issue("p1", "member", 3, kind, false)
		if err != nil {
			t.Fatalf("Issue(%s) failed: %v", kind, err)
		}

		claims, err := iss.Verify(serialized, kind)
		if err != nil {
			t.Fatalf("Verify(%s) failed: %v", kind, err)
		}
		if claims.Subject != "p1" || claims.Role != "member" || claims.TokenVersion != 3 || claims.TokenKind != kind {
			t.Fatalf("claims mismatch: %+v", claims)
		}
		if claims.ID == "" || claims.ID != issued.ID {
			t.Fatalf("expected stable jti, got %q vs %q", claims.ID, issued.ID)
		}
		if claims.IssuedAt == nil || claims.ExpiresAt == nil {
			t.Fatal("expected iat and exp to be present")
		}
	}
}

func TestIssueGeneratesUniqueJTI(t *testing.T) {
	iss := newTestIssuer(t)

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		_, claims, err := iss.Issue("p1", "member", 1, KindAccess, false)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if seen[claims.ID] {
			t.Fatalf("duplicate jti %q", claims.ID)
		}
		seen[claims.ID] = true
	}
}

func TestVerifyRejectsKindMismatch(t *testing.T) {
	iss := newTestIssuer(t)

	serialized, _, err := iss.Issue("p1", "member", 1, KindRefresh, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := iss.Verify(serialized, KindAccess); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	iss := newTestIssuer(t)

	serialized, _, err := iss.Issue("p1", "member", 1, KindAccess, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	parts := strings.Split(serialized, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := iss.Verify(tampered, KindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := iss.Verify("not-a-token", KindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = time.Millisecond
	cfg.Leeway = 0
	iss, err := NewIssuer(cfg)
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	serialized, _, err := iss.Issue("p1", "member", 1, KindAccess, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := iss.Verify(serialized, KindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestRememberMeExtendsRefreshOnly(t *testing.T) {
	iss := newTestIssuer(t)

	_, refresh, err := iss.Issue("p1", "member", 1, KindRefresh, true)
	if err != nil {
		t.Fatalf("Issue refresh failed: %v", err)
	}
	_, access, err := iss.Issue("p1", "member", 1, KindAccess, true)
	if err != nil {
		t.Fatalf("Issue access failed: %v", err)
	}

	refreshTTL := time.Until(refresh.ExpiresAt.Time)
	if refreshTTL < 29*24*time.Hour {
		t.Fatalf("expected remember-me refresh lifetime, got %s", refreshTTL)
	}
	accessTTL := time.Until(access.ExpiresAt.Time)
	if accessTTL > 16*time.Minute {
		t.Fatalf("remember-me must not extend access lifetime, got %s", accessTTL)
	}
}

func TestEd25519SigningMethod(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}

	cfg := testConfig()
	cfg.SigningMethod = MethodEd25519
	cfg.PrivateKey = priv
	cfg.PublicKey = pub

	iss, err := NewIssuer(cfg)
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	serialized, _, err := iss.Issue("p1", "admin", 2, KindAccess, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := iss.Verify(serialized, KindAccess)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "p1" || claims.Role != "admin" || claims.TokenVersion != 2 {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestNewIssuerRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = 0
	if _, err := NewIssuer(cfg); err == nil {
		t.Fatal("expected error for zero access TTL")
	}

	cfg = testConfig()
	cfg.PrivateKey = nil
	if _, err := NewIssuer(cfg); err == nil {
		t.Fatal("expected error for missing hs256 key")
	}

	cfg = testConfig()
	cfg.SigningMethod = "rs512"
	if _, err := NewIssuer(cfg); err == nil {
		t.Fatal("expected error for unsupported method")
	}

	cfg = testConfig()
	cfg.Leeway = 5 * time.Minute
	if _, err := NewIssuer(cfg); err == nil {
		t.Fatal("expected error for oversized leeway")
	}
}
