package authcore

import (
	"context"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/dhirajgiri3/authcore/guard"
	internalaudit "github.com/dhirajgiri3/authcore/internal/audit"
	internalmetrics "github.com/dhirajgiri3/authcore/internal/metrics"
)

// EnrollTOTP starts time-based enrollment: it generates a fresh secret,
// stores it in pending state, and returns the secret plus otpauth URI
// for the authenticator app. The factor is not honored for login until
// ActivateMFA succeeds once. Enrollment from the active state is
// rejected; disable the current factor first.
func (e *Engine) EnrollTOTP(ctx context.Context, principalID string) (*MFAEnrollment, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	principal, err := e.principals.GetByID(depCtx, principalID)
	if err != nil || principal == nil {
		return nil, ErrNotAuthorized
	}
	if principal.MFAStatus == MFAActive {
		return nil, ErrEnrollmentState
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.config.OTP.TOTPIssuer,
		AccountName: principal.Identifier,
		Period:      e.config.OTP.Period,
		Digits:      otp.Digits(e.config.OTP.Digits),
	})
	if err != nil {
		return nil, err
	}

	if err := e.principals.SetMFAEnrollment(depCtx, principalID, MFATOTP, key.Secret(), MFAPending); err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return nil, ErrDependencyUnavailable
	}

	e.metricInc(internalmetrics.MFAEnrolled)
	e.emit(ctx, internalaudit.EventMFAEnrolled, principalID, "", true, nil)
	return &MFAEnrollment{Method: MFATOTP, Secret: key.Secret(), URI: key.URL()}, nil
}

// EnrollSMS starts SMS enrollment. It requires a phone number on file,
// dispatches a one-time code through the delivery collaborator, and
// parks the enrollment in pending state until ActivateMFA confirms the
// channel works.
func (e *Engine) EnrollSMS(ctx context.Context, principalID string) (*MFAEnrollment, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	principal, err := e.principals.GetByID(depCtx, principalID)
	if err != nil || principal == nil {
		return nil, ErrNotAuthorized
	}
	if principal.MFAStatus == MFAActive {
		return nil, ErrEnrollmentState
	}
	if principal.Phone == "" {
		return nil, ErrPhoneRequired
	}

	dispatchID, err := e.dispatchSMSCode(ctx, principal)
	if err != nil {
		return nil, err
	}

	if err := e.principals.SetMFAEnrollment(depCtx, principalID, MFASMS, "", MFAPending); err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return nil, ErrDependencyUnavailable
	}

	e.metricInc(internalmetrics.MFAEnrolled)
	e.emit(ctx, internalaudit.EventMFAEnrolled, principalID, "", true, nil)
	return &MFAEnrollment{Method: MFASMS, DispatchID: dispatchID}, nil
}

// ActivateMFA verifies a code against the pending enrollment and, on
// the first success, flips the factor to active. This is the only
// transition that makes the factor count for future logins. In any
// state other than pending the call fails with ErrEnrollmentState.
func (e *Engine) ActivateMFA(ctx context.Context, principalID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	principal, err := e.principals.GetByID(depCtx, principalID)
	if err != nil || principal == nil {
		return ErrNotAuthorized
	}
	if principal.MFAStatus != MFAPending {
		return ErrEnrollmentState
	}

	if err := e.verifyCode(ctx, principal, code); err != nil {
		return err
	}

	if err := e.principals.SetMFAStatus(depCtx, principalID, MFAActive); err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return ErrDependencyUnavailable
	}

	e.metricInc(internalmetrics.MFAActivated)
	e.emit(ctx, internalaudit.EventMFAActivated, principalID, "", true, nil)
	return nil
}

// DisableMFA turns the active factor off. A fresh successful
// verification is required, not a bare toggle, so a hijacked session
// cannot silently disable the factor. Because the multi-factor posture
// changed, every outstanding token is invalidated.
func (e *Engine) DisableMFA(ctx context.Context, principalID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	principal, err := e.principals.GetByID(depCtx, principalID)
	if err != nil || principal == nil {
		return ErrNotAuthorized
	}
	if principal.MFAStatus != MFAActive {
		return ErrEnrollmentState
	}

	if err := e.verifyCode(ctx, principal, code); err != nil {
		return err
	}

	if err := e.principals.SetMFAEnrollment(depCtx, principalID, MFANone, "", MFAInactive); err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return ErrDependencyUnavailable
	}
	if err := e.bumpVersion(ctx, principalID); err != nil {
		return err
	}

	e.metricInc(internalmetrics.MFADisabled)
	e.emit(ctx, internalaudit.EventMFADisabled, principalID, "", true, nil)
	return nil
}

// verifyCode checks a one-time code against the principal's configured
// factor, pending or active. The one-time-code failure budget is
// consulted before any matching happens.
func (e *Engine) verifyCode(ctx context.Context, principal *PrincipalRecord, code string) error {
	depCtx, cancel := e.depContext(ctx)
	defer cancel()

	guardKey := principal.ID
	if principal.MFAMethod == MFASMS {
		guardKey = principal.Phone
	}

	locked, retryAfter, err := e.guard.IsLocked(depCtx, guard.ChannelOTP, guardKey)
	if err != nil {
		e.metricInc(internalmetrics.DependencyFailure)
		return ErrDependencyUnavailable
	}
	if locked {
		e.metricInc(internalmetrics.OTPLockedOut)
		e.emit(ctx, internalaudit.EventLockout, principal.ID, "", false, ErrLockedOut)
		return &LockoutError{RetryAfter: retryAfter}
	}

	var approved bool
	switch principal.MFAMethod {
	case MFATOTP:
		// One adjacent time step of skew; a successful check does not
		// consume the code, so each one is audited for anomaly hunting.
		approved, err = totp.ValidateCustom(code, principal.MFASecret, time.Now(), totp.ValidateOpts{
			Period: e.config.OTP.Period,
			Skew:   e.config.OTP.Skew,
			Digits: otp.Digits(e.config.OTP.Digits),
		})
		if err != nil {
			approved = false
		}
		if approved {
			e.emit(ctx, internalaudit.EventTOTPCheck, principal.ID, "", true, nil)
		}
	case MFASMS:
		if e.delivery == nil || principal.Phone == "" {
			return ErrDeliveryRejected
		}
		approved, err = e.delivery.CheckCode(ctx, ChannelSMS, principal.Phone, code)
		if err != nil {
			e.logger.Warn("sms code check failed", "principal", principal.ID, "error", err)
			e.metricInc(internalmetrics.DependencyFailure)
			return ErrDependencyUnavailable
		}
	default:
		return ErrEnrollmentState
	}

	if !approved {
		lockedNow, recordErr := e.guard.RecordFailure(depCtx, guard.ChannelOTP, guardKey)
		if recordErr != nil {
			e.logger.Warn("otp failure not recorded", "error", recordErr)
		}
		e.metricInc(internalmetrics.OTPCheckFailure)
		if lockedNow {
			e.emit(ctx, internalaudit.EventLockout, principal.ID, "", false, ErrLockedOut)
		}
		return ErrNotAuthorized
	}

	if err := e.guard.RecordSuccess(depCtx, guard.ChannelOTP, guardKey); err != nil {
		e.logger.Warn("otp counter reset failed", "error", err)
	}
	e.metricInc(internalmetrics.OTPCheckSuccess)
	return nil
}
