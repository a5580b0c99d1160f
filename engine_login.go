package authcore

import (
	"context"
	"errors"

	"github.com/dhirajgiri3/authcore/guard"
	internalaudit "github.com/dhirajgiri3/authcore/internal/audit"
	internalmetrics "github.com/dhirajgiri3/authcore/internal/metrics"
)

// dummyHash keeps the password-compare cost constant for unknown
// identifiers so response timing does not reveal account existence.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$AAAAAAAAAAAAAAAAAAAAAA==$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

// Login authenticates an identifier+password pair. The brute-force
// guard is consulted before the password compare, a lockout never
// reveals whether the account exists, and bad credentials always read
// as ErrNotAuthorized.
//
// When the principal has an active second factor the returned result
// has MFARequired set and carries no tokens; complete the challenge
// with LoginWithCode. For the SMS method a one-time code has already
// been dispatched by the time Login returns.
func (e *Engine) Login(ctx context.Context, identifier, pass string, rememberMe bool) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	principal, err := e.authenticatePassword(ctx, identifier, pass)
	if err != nil {
		return nil, err
	}

	if principal.MFAStatus == MFAActive && principal.MFAMethod != MFANone {
		if principal.MFAMethod == MFASMS {
			if _, err := e.dispatchSMSCode(ctx, principal); err != nil {
				return nil, err
			}
		}
		return &LoginResult{
			PrincipalID: principal.ID,
			MFARequired: true,
			MFAMethod:   principal.MFAMethod,
		}, nil
	}

	pair, err := e.issuePair(principal, rememberMe)
	if err != nil {
		return nil, err
	}

	e.metricInc(internalmetrics.LoginSuccess)
	e.emit(ctx, internalaudit.EventLoginSuccess, principal.ID, "", true, nil)
	return &LoginResult{TokenPair: pair, PrincipalID: principal.ID}, nil
}

// LoginWithCode completes a multi-factor login: it re-authenticates the
// password, then verifies the one-time code against the active factor.
// The code channel has its own, tighter failure budget.
func (e *Engine) LoginWithCode(ctx context.Context, identifier, pass, code string, rememberMe bool) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	principal, err := e.authenticatePassword(ctx, identifier, pass)
	if err != nil {
		return nil, err
	}
	if principal.MFAStatus != MFAActive || principal.MFAMethod == MFANone {
		return nil, ErrEnrollmentState
	}

	if err := e.verifyCode(ctx, principal, code); err != nil {
		return nil, err
	}

	pair, err := e.issuePair(principal, rememberMe)
	if err != nil {
		return nil, err
	}

	e.metricInc(internalmetrics.LoginSuccess)
	e.emit(ctx, internalaudit.EventLoginSuccess, principal.ID, "", true, nil)
	return &LoginResult{TokenPair: pair, PrincipalID: principal.ID}, nil
}

// authenticatePassword runs guard check, credential lookup, and
// password compare. The failure counter is keyed by identifier so it
// also covers probes against accounts that do not exist.
func (e *Engine) authenticatePassword(ctx context.Context, identifier, pass string) (*PrincipalRecord, error) {
	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	locked, retryAfter, err := e.guard.IsLocked(depCtx, guard.ChannelLogin, identifier)
	if err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return nil, ErrDependencyUnavailable
	}
	if locked {
		e.metricInc(internalmetrics.LoginLockedOut)
		e.emit(ctx, internalaudit.EventLockout, "", "", false, ErrLockedOut)
		return nil, &LockoutError{RetryAfter: retryAfter}
	}

	principal, lookupErr := e.principals.GetByIdentifier(depCtx, identifier)

	candidateHash := dummyHash
	if lookupErr == nil && principal != nil {
		candidateHash = principal.PasswordHash
	}
	ok, verifyErr := e.hasher.Verify(pass, candidateHash)
	if verifyErr != nil {
		ok = false
	}

	if lookupErr != nil || principal == nil || !ok {
		return nil, e.recordLoginFailure(ctx, identifier)
	}

	if err := e.guard.RecordSuccess(depCtx, guard.ChannelLogin, identifier); err != nil {
		e.logger.Warn("login counter reset failed", "error", err)
	}
	return principal, nil
}

func (e *Engine) recordLoginFailure(ctx context.Context, identifier string) error {
	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	lockedNow, err := e.guard.RecordFailure(depCtx, guard.ChannelLogin, identifier)
	if err != nil {
		e.logger.Warn("login failure not recorded", "error", err)
	}
	e.metricInc(internalmetrics.LoginFailure)
	e.emit(ctx, internalaudit.EventLoginFailure, "", "", false, ErrNotAuthorized)
	if lockedNow {
		e.emit(ctx, internalaudit.EventLockout, "", "", false, ErrLockedOut)
	}
	// Same outcome whether the account exists or the password is wrong.
	return ErrNotAuthorized
}

func (e *Engine) dispatchSMSCode(ctx context.Context, principal *PrincipalRecord) (string, error) {
	if e.delivery == nil {
		return "", ErrDeliveryRejected
	}
	if principal.Phone == "" {
		return "", ErrPhoneRequired
	}
	dispatchID, err := e.delivery.SendCode(ctx, ChannelSMS, principal.Phone)
	if err != nil {
		e.logger.Warn("sms code dispatch failed", "principal", principal.ID, "error", err)
		return "", errors.Join(ErrDeliveryRejected, err)
	}
	return dispatchID, nil
}
