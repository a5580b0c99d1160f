package authcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/dhirajgiri3/authcore/guard"
	internalaudit "github.com/dhirajgiri3/authcore/internal/audit"
	internalmetrics "github.com/dhirajgiri3/authcore/internal/metrics"
	"github.com/dhirajgiri3/authcore/password"
	"github.com/dhirajgiri3/authcore/revocation"
	"github.com/dhirajgiri3/authcore/token"
)

// Engine is the session and trust lifecycle engine. Construct it with
// Builder.Build; all methods are safe for concurrent use afterwards.
// Cross-request coordination lives entirely in the cache and durable
// stores, so multiple stateless Engine instances may run side by side.
type Engine struct {
	config     Config
	issuer     *token.Issuer
	registry   *revocation.Registry
	guard      *guard.Guard
	hasher     *password.Hasher
	principals PrincipalStore
	delivery   Delivery
	audit      *internalaudit.Dispatcher
	metrics    *internalmetrics.Metrics
	logger     *slog.Logger
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Registry exposes the revocation registry for maintenance wiring
// (purge loops).
func (e *Engine) Registry() *revocation.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Validate verifies an access token end to end: signature and expiry,
// kind, revocation registry, and token-version equality against the
// current credential record. Every failure collapses into
// ErrNotAuthorized so callers cannot tell which check rejected them.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.issuer.Verify(accessToken, token.KindAccess)
	if err != nil {
		e.metricInc(internalmetrics.ValidateFailure)
		return nil, ErrNotAuthorized
	}

	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	revoked, err := e.registry.IsRevoked(depCtx, claims.ID)
	if revoked {
		if err != nil {
			// Fail-secure path: outage, not a confirmed revocation.
			e.logger.Warn("revocation check degraded, denying", "error", err)
			e.metricInc(internalmetrics.DependencyFailure)
		}
		e.metricInc(internalmetrics.ValidateFailure)
		return nil, ErrNotAuthorized
	}

	principal, err := e.principals.GetByID(depCtx, claims.Subject)
	if err != nil || principal == nil {
		e.metricInc(internalmetrics.ValidateFailure)
		return nil, ErrNotAuthorized
	}
	if claims.TokenVersion != principal.TokenVersion {
		e.metricInc(internalmetrics.ValidateFailure)
		return nil, ErrNotAuthorized
	}

	e.metricInc(internalmetrics.ValidateSuccess)
	return &AuthResult{
		PrincipalID:  claims.Subject,
		Role:         claims.Role,
		TokenVersion: claims.TokenVersion,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// Logout individually revokes the presented access and refresh tokens.
// The refresh token is optional; garbage refresh input does not undo the
// access revocation.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.issuer.Verify(accessToken, token.KindAccess)
	if err != nil {
		return ErrNotAuthorized
	}

	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	if err := e.registry.Revoke(depCtx, claims.ID, string(token.KindAccess), claims.ExpiresAt.Time); err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return ErrDependencyUnavailable
	}

	if refreshToken != "" {
		if refreshClaims, err := e.issuer.Verify(refreshToken, token.KindRefresh); err == nil {
			if err := e.registry.Revoke(depCtx, refreshClaims.ID, string(token.KindRefresh), refreshClaims.ExpiresAt.Time); err != nil {
				e.metricInc(internalmetrics.DependencyFailure)
				return ErrDependencyUnavailable
			}
		}
	}

	e.metricInc(internalmetrics.Logout)
	e.emit(ctx, internalaudit.EventLogout, claims.Subject, claims.ID, true, nil)
	return nil
}

// LogoutEverywhere invalidates every outstanding token for the
// principal by incrementing its token version. No individual revocation
// records are written; verification rejects the stale version instantly.
func (e *Engine) LogoutEverywhere(ctx context.Context, principalID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.bumpVersion(ctx, principalID); err != nil {
		return err
	}
	e.metricInc(internalmetrics.LogoutAll)
	e.emit(ctx, internalaudit.EventLogoutAll, principalID, "", true, nil)
	return nil
}

// ChangePassword swaps the stored hash after verifying the current
// password, then invalidates every outstanding token: a password change
// is a principal-level security event.
func (e *Engine) ChangePassword(ctx context.Context, principalID, currentPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	principal, err := e.principals.GetByID(depCtx, principalID)
	if err != nil || principal == nil {
		return ErrNotAuthorized
	}
	ok, err := e.hasher.Verify(currentPassword, principal.PasswordHash)
	if err != nil || !ok {
		return ErrNotAuthorized
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.principals.UpdatePasswordHash(depCtx, principalID, newHash); err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return ErrDependencyUnavailable
	}
	if err := e.bumpVersion(ctx, principalID); err != nil {
		return err
	}

	e.emit(ctx, internalaudit.EventPasswordChange, principalID, "", true, nil)
	return nil
}

func (e *Engine) bumpVersion(ctx context.Context, principalID string) error {
	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	if _, err := e.principals.BumpTokenVersion(depCtx, principalID); err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return ErrDependencyUnavailable
	}
	e.metricInc(internalmetrics.VersionBump)
	return nil
}

func (e *Engine) issuePair(principal *PrincipalRecord, rememberMe bool) (TokenPair, error) {
	access, accessClaims, err := e.issuer.Issue(principal.ID, principal.Role, principal.TokenVersion, token.KindAccess, rememberMe)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshClaims, err := e.issuer.Issue(principal.ID, principal.Role, principal.TokenVersion, token.KindRefresh, rememberMe)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

func (e *Engine) depContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Dependency.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Dependency.Timeout)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emit(ctx context.Context, eventType, principalID, jti string, success bool, err error) {
	if e == nil || e.audit == nil {
		return
	}
	event := internalaudit.Event{
		Timestamp:   time.Now(),
		EventType:   eventType,
		PrincipalID: principalID,
		JTI:         jti,
		Success:     success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}
