package authcore

import (
	"context"
	"time"
)

// MFAMethod identifies the second factor configured for a principal.
type MFAMethod string

const (
	// MFANone means no second factor is configured.
	MFANone MFAMethod = "none"
	// MFATOTP is the time-based one-time code method.
	MFATOTP MFAMethod = "totp"
	// MFASMS is the SMS one-time code method.
	MFASMS MFAMethod = "sms"
)

// MFAStatus is the enrollment state of a principal's second factor.
type MFAStatus string

const (
	// MFAInactive means the factor is not enrolled and is never honored.
	MFAInactive MFAStatus = "inactive"
	// MFAPending means enrollment has started; only the activation
	// verification call is permitted in this state.
	MFAPending MFAStatus = "pending"
	// MFAActive means the factor is honored for login.
	MFAActive MFAStatus = "active"
)

// PrincipalRecord is the durable credential record for one principal.
// TokenVersion is the monotonic counter behind "log out everywhere":
// every issued token embeds the version current at issuance, and
// verification rejects any token whose embedded version is stale.
type PrincipalRecord struct {
	ID           string
	Identifier   string
	PasswordHash string
	Role         string
	TokenVersion int64
	MFAMethod    MFAMethod
	MFASecret    string
	MFAStatus    MFAStatus
	Phone        string
}

// PrincipalStore is the credential-store collaborator. The engine reads
// and updates records through it but does not own their persistence.
// BumpTokenVersion must be an atomic increment on the stored record so
// concurrent security events never lose a revocation.
type PrincipalStore interface {
	GetByID(ctx context.Context, id string) (*PrincipalRecord, error)
	GetByIdentifier(ctx context.Context, identifier string) (*PrincipalRecord, error)
	UpdatePasswordHash(ctx context.Context, id, newHash string) error
	BumpTokenVersion(ctx context.Context, id string) (int64, error)
	SetMFAEnrollment(ctx context.Context, id string, method MFAMethod, secret string, status MFAStatus) error
	SetMFAStatus(ctx context.Context, id string, status MFAStatus) error
}

// DeliveryChannel names a one-time-code delivery transport.
type DeliveryChannel string

// ChannelSMS is the only delivery channel the engine dispatches today.
const ChannelSMS DeliveryChannel = "sms"

// Delivery is the one-time-code delivery collaborator. The engine treats
// it as a black box: it dispatches codes and checks them, and only reacts
// to approved, denied, or error.
type Delivery interface {
	SendCode(ctx context.Context, channel DeliveryChannel, destination string) (dispatchID string, err error)
	CheckCode(ctx context.Context, channel DeliveryChannel, destination, code string) (approved bool, err error)
}

// TokenPair carries the two bearer credentials returned by login and
// rotation. The transport wrapper (cookies, headers) is the caller's
// responsibility.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is returned by Engine.Login. When MFARequired is set the
// pair is empty and the caller must complete the challenge through
// Engine.LoginWithCode.
type LoginResult struct {
	TokenPair

	PrincipalID string
	MFARequired bool
	MFAMethod   MFAMethod
}

// AuthResult is returned by Engine.Validate for an access token that
// passed every check.
type AuthResult struct {
	PrincipalID  string
	Role         string
	TokenVersion int64
	JTI          string
	ExpiresAt    time.Time
}

// MFAEnrollment is returned when an enrollment starts. For TOTP, Secret
// is the base32 shared secret and URI the otpauth:// provisioning
// string; for SMS, DispatchID identifies the sent code.
type MFAEnrollment struct {
	Method     MFAMethod
	Secret     string
	URI        string
	DispatchID string
}
