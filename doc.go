// Package authcore provides a session and trust lifecycle engine: JWT
// bearer token issuance and verification, refresh rotation with replay
// detection, a dual-store revocation registry, TOTP and SMS second
// factors, and brute-force lockout.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build], and all cross-request state
// lives in the shared cache and durable stores so stateless instances
// can run side by side.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], the collaborator interfaces ([PrincipalStore], [Delivery]),
// and value types (TokenPair, AuthResult, MFAEnrollment). Token
// minting, the revocation registry, and the lockout guard live in the
// token, revocation, and guard subpackages; audit dispatch and metrics
// live under internal/ and are re-exported here only as aliases.
//
// # Security posture
//
// Verification fails closed. A revocation-registry outage denies
// rather than admits; every credential failure collapses into
// [ErrNotAuthorized] so callers cannot distinguish a wrong password
// from a nonexistent account; and a replayed refresh token revokes the
// entire token family by bumping the principal's token version.
package authcore
