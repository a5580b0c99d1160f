package authcore

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full engine configuration. Construct it with
// DefaultConfig or LoadConfig and treat it as immutable after Build.
type Config struct {
	Token      TokenConfig      `envPrefix:"AUTHCORE_TOKEN_"`
	Lockout    LockoutConfig    `envPrefix:"AUTHCORE_LOCKOUT_"`
	OTP        OTPConfig        `envPrefix:"AUTHCORE_OTP_"`
	Revocation RevocationConfig `envPrefix:"AUTHCORE_REVOCATION_"`
	Dependency DependencyConfig `envPrefix:"AUTHCORE_DEPENDENCY_"`
	Audit      AuditConfig      `envPrefix:"AUTHCORE_AUDIT_"`
	Metrics    MetricsConfig    `envPrefix:"AUTHCORE_METRICS_"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds bearer-token lifetimes and signing material.
type TokenConfig struct {
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	RememberMeTTL time.Duration `env:"REMEMBER_ME_TTL" envDefault:"720h"`
	SigningMethod string        `env:"SIGNING_METHOD" envDefault:"hs256"` // "hs256" or "ed25519"
	PrivateKey    string        `env:"PRIVATE_KEY"`
	PublicKey     string        `env:"PUBLIC_KEY"`
	Issuer        string        `env:"ISSUER" envDefault:"authcore"`
	Leeway        time.Duration `env:"LEEWAY" envDefault:"30s"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig holds the brute-force guard policy. Login and one-time
// code channels use independent keys and independent thresholds: code
// guessing is the higher-value target and gets the tighter budget.
type LockoutConfig struct {
	LoginMaxFailures int           `env:"LOGIN_MAX_FAILURES" envDefault:"5"`
	LoginDuration    time.Duration `env:"LOGIN_DURATION" envDefault:"15m"`
	OTPMaxFailures   int           `env:"OTP_MAX_FAILURES" envDefault:"3"`
	OTPDuration      time.Duration `env:"OTP_DURATION" envDefault:"30m"`
	KeyPrefix        string        `env:"KEY_PREFIX" envDefault:"bfg"`
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig holds one-time-code parameters shared by the TOTP and SMS
// methods.
type OTPConfig struct {
	TOTPIssuer string `env:"TOTP_ISSUER" envDefault:"authcore"`
	Digits     int    `env:"DIGITS" envDefault:"6"`
	Period     uint   `env:"PERIOD" envDefault:"30"`
	Skew       uint   `env:"SKEW" envDefault:"1"`
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig tunes the revocation registry.
type RevocationConfig struct {
	KeyPrefix     string        `env:"KEY_PREFIX" envDefault:"revocation"`
	RetryAttempts uint64        `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInitial  time.Duration `env:"RETRY_INITIAL" envDefault:"50ms"`
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" envDefault:"1h"`
}

/*
====================================
DEPENDENCY CONFIG
====================================
*/

// DependencyConfig bounds every cache and durable-store call made on the
// request path. After the timeout the fail-secure policy of the
// revocation registry applies.
type DependencyConfig struct {
	Timeout time.Duration `env:"TIMEOUT" envDefault:"2s"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED" envDefault:"true"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// DefaultConfig returns the policy defaults without touching the
// environment.
func DefaultConfig() Config {
	cfg := Config{}
	// env.Parse with an empty environment resolves envDefault tags.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic("authcore: default config tags invalid: " + err.Error())
	}
	return cfg
}

// LoadConfig reads configuration from a .env file when one exists, then
// from the process environment. Unset variables keep their defaults.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RememberMeTTL < c.Token.RefreshTTL {
		return errors.New("remember-me TTL must not be shorter than refresh TTL")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	switch c.Token.SigningMethod {
	case "hs256", "ed25519":
	default:
		return errors.New("unsupported signing method: " + c.Token.SigningMethod)
	}
	if c.Token.PrivateKey == "" {
		return errors.New("signing private key required")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("leeway out of range")
	}
	if c.Lockout.LoginMaxFailures <= 0 || c.Lockout.OTPMaxFailures <= 0 {
		return errors.New("lockout thresholds must be positive")
	}
	if c.Lockout.LoginDuration <= 0 || c.Lockout.OTPDuration <= 0 {
		return errors.New("lockout durations must be positive")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 8 {
		return errors.New("otp digits must be between 6 and 8")
	}
	if c.OTP.Period == 0 {
		return errors.New("otp period must be positive")
	}
	if c.OTP.Skew > 1 {
		// More than one adjacent step widens the guessing window.
		return errors.New("otp skew must be 0 or 1")
	}
	if c.Revocation.RetryAttempts == 0 || c.Revocation.RetryAttempts > 5 {
		return errors.New("revocation retry attempts must be between 1 and 5")
	}
	if c.Dependency.Timeout <= 0 {
		return errors.New("dependency timeout must be positive")
	}
	return nil
}
