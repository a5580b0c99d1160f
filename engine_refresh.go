package authcore

import (
	"context"

	internalaudit "github.com/dhirajgiri3/authcore/internal/audit"
	internalmetrics "github.com/dhirajgiri3/authcore/internal/metrics"
	"github.com/dhirajgiri3/authcore/token"
)

// Rotate exchanges a valid refresh token for a new access/refresh pair,
// atomically consuming the one presented. Each step is a hard
// precondition:
//
//  1. The token must verify as kind refresh.
//  2. Its embedded token version must equal the principal's current one.
//  3. Its jti must not already be in the revocation registry. Finding it
//     there is not a routine expiry: someone is replaying a consumed
//     refresh token, and the whole token family is revoked by bumping
//     the principal's token version.
//  4. The revocation of the consumed token must be durably acknowledged.
//     Only then is the new pair minted; a dependency timeout before that
//     point returns ErrDependencyUnavailable with no tokens issued.
//
// Two racing rotations of the same token resolve through the cache's
// set-if-absent primitive: exactly one wins, the other lands on the
// already-revoked path and triggers the escalation.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.issuer.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		e.metricInc(internalmetrics.RotationFailure)
		return nil, ErrNotAuthorized
	}

	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	principal, err := e.principals.GetByID(depCtx, claims.Subject)
	if err != nil || principal == nil {
		e.metricInc(internalmetrics.RotationFailure)
		return nil, ErrNotAuthorized
	}
	if claims.TokenVersion != principal.TokenVersion {
		e.metricInc(internalmetrics.RotationFailure)
		return nil, ErrNotAuthorized
	}

	// Read-through check first: it heals the cache from the durable
	// store, so a consumed jti is still caught after a cache flush.
	revoked, err := e.registry.IsRevoked(depCtx, claims.ID)
	if err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		e.metricInc(internalmetrics.RotationFailure)
		return nil, ErrDependencyUnavailable
	}
	if revoked {
		return nil, e.escalateReplay(ctx, claims)
	}

	winner, err := e.registry.RevokeIfAbsent(depCtx, claims.ID, string(token.KindRefresh), claims.ExpiresAt.Time)
	if err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		e.metricInc(internalmetrics.RotationFailure)
		return nil, ErrDependencyUnavailable
	}
	if !winner {
		// Lost the race to a concurrent rotation of the same token.
		return nil, e.escalateReplay(ctx, claims)
	}

	pair, err := e.issuePair(principal, false)
	if err != nil {
		e.metricInc(internalmetrics.RotationFailure)
		return nil, err
	}

	e.metricInc(internalmetrics.RotationSuccess)
	e.emit(ctx, internalaudit.EventRotation, claims.Subject, claims.ID, true, nil)
	return &pair, nil
}

// escalateReplay handles reuse of an already-consumed refresh token.
// The replayed token alone is not the problem; the pair minted in
// exchange for it may be in hostile hands, so every outstanding token
// for the principal is invalidated at once.
func (e *Engine) escalateReplay(ctx context.Context, claims *token.Claims) error {
	e.metricInc(internalmetrics.ReplayDetected)
	e.metricInc(internalmetrics.RotationFailure)
	e.logger.Warn("refresh token replay detected, revoking token family",
		"principal", claims.Subject, "jti", claims.ID)
	e.emit(ctx, internalaudit.EventReplayDetected, claims.Subject, claims.ID, false, ErrTokenReplay)

	if err := e.bumpVersion(ctx, claims.Subject); err != nil {
		// The deny stands either way; the family revocation is retried
		// by the next replay hit if this write was lost.
		e.logger.Error("token family revocation failed", "principal", claims.Subject, "error", err)
	}

	// The replay signal stays internal; the caller sees the same
	// outcome as any other invalid token.
	return ErrNotAuthorized
}
