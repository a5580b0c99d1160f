package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotAuthorized is the single external failure kind for every
	// authentication check: bad signature, wrong token kind, stale token
	// version, revoked jti, unknown principal, wrong password. Callers
	// must not be able to tell which check failed.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrTokenReplay signals reuse of an already-rotated refresh token.
	// It never crosses the engine boundary verbatim; the engine escalates
	// and returns ErrNotAuthorized instead.
	ErrTokenReplay = errors.New("refresh token replay detected")
	// ErrLockedOut is returned while a brute-force lockout window is
	// active. Use errors.As with *LockoutError to read the retry-after.
	ErrLockedOut = errors.New("locked out")
	// ErrEnrollmentState is returned when an MFA operation is attempted
	// in a state that does not permit it.
	ErrEnrollmentState = errors.New("invalid mfa enrollment state")
	// ErrDependencyUnavailable is returned when the cache or durable
	// store stays unreachable after the retry budget is exhausted.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrEngineNotReady is returned by engine methods before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrPhoneRequired is returned by SMS enrollment when the principal
	// has no phone number on file.
	ErrPhoneRequired = errors.New("verified phone number required")
	// ErrDeliveryRejected is returned when the delivery collaborator
	// refuses to dispatch a one-time code.
	ErrDeliveryRejected = errors.New("code delivery rejected")
)

// LockoutError wraps ErrLockedOut with the remaining lockout duration.
// It is the only authentication failure that carries a hint, and it is
// produced for existing and non-existing principals alike.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("locked out, retry after %s", e.RetryAfter.Round(time.Second))
}

// Unwrap makes errors.Is(err, ErrLockedOut) hold for wrapped lockouts.
func (e *LockoutError) Unwrap() error { return ErrLockedOut }
