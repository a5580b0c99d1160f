// Package token mints and verifies the two bearer credentials issued by
// the engine: short-lived access tokens and long-lived refresh tokens.
// Verification here is purely cryptographic and structural; revocation
// and token-version checks are layered on top by the engine.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes the two token lifetimes. A token of one kind is
// never accepted where the other is expected.
type Kind string

const (
	// KindAccess is the short-lived credential presented on every request.
	KindAccess Kind = "access"
	// KindRefresh is the long-lived credential consumed by rotation.
	KindRefresh Kind = "refresh"
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	// MethodHS256 is an exported signing method selector.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 is an exported signing method selector.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrTokenInvalid covers structurally invalid, badly signed, or
	// expired tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrKindMismatch is returned when a token of the wrong kind is
	// presented.
	ErrKindMismatch = errors.New("token kind mismatch")
)

// Claims is the fixed, versioned claim record carried by every token.
// Every issuance site populates every field; the payload is never an
// open map.
type Claims struct {
	Role         string `json:"role"`
	TokenVersion int64  `json:"tv"`
	TokenKind    Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Config holds issuer parameters. Instances are configured once and
// treated as immutable.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Issuer mints and verifies signed bearer tokens. It has no side
// effects beyond signing and never touches a store.
type Issuer struct {
	config Config
}

// NewIssuer validates key material up front so that signing failures
// cannot surface mid-request.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RememberMeTTL == 0 {
		cfg.RememberMeTTL = cfg.RefreshTTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Issuer{config: cfg}, nil
}

// Issue builds, signs, and serializes a token of the given kind. The jti
// comes from a collision-resistant random source, never from content, so
// two tokens minted for the same principal in the same instant stay
// independently revocable. rememberMe extends refresh lifetime only.
func (i *Issuer) Issue(principalID, role string, tokenVersion int64, kind Kind, rememberMe bool) (string, *Claims, error) {
	if i == nil {
		return "", nil, errors.New("issuer not initialized")
	}

	ttl := i.config.AccessTTL
	if kind == KindRefresh {
		ttl = i.config.RefreshTTL
		if rememberMe {
			ttl = i.config.RememberMeTTL
		}
	}

	now := time.Now()
	claims := &Claims{
		Role:         role,
		TokenVersion: tokenVersion,
		TokenKind:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ID:        uuid.NewString(),
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(i.method(), claims).SignedString(i.signKey())
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, claims, nil
}

// Verify parses and validates a serialized token and enforces the
// expected kind. It fails closed: any structural, signature, expiry, or
// kind problem maps to ErrTokenInvalid or ErrKindMismatch, and callers
// collapse both into one external outcome.
func (i *Issuer) Verify(serialized string, expected Kind) (*Claims, error) {
	if i == nil {
		return nil, errors.New("issuer not initialized")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method().Alg()}),
		jwt.WithIssuedAt(),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(serialized, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != i.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return i.verifyKey()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrTokenInvalid
	}
	if claims.TokenKind != expected {
		return nil, ErrKindMismatch
	}
	return claims, nil
}

func (i *Issuer) method() jwt.SigningMethod {
	switch i.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (i *Issuer) signKey() interface{} {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.PrivateKey
	default:
		key, _ := parseEdPrivateKey(i.config.PrivateKey)
		return key
	}
}

func (i *Issuer) verifyKey() (interface{}, error) {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		return parseEdPublicKey(i.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
