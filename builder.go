package authcore

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dhirajgiri3/authcore/guard"
	internalaudit "github.com/dhirajgiri3/authcore/internal/audit"
	internalmetrics "github.com/dhirajgiri3/authcore/internal/metrics"
	"github.com/dhirajgiri3/authcore/password"
	"github.com/dhirajgiri3/authcore/revocation"
	"github.com/dhirajgiri3/authcore/token"
)

// Builder assembles an Engine. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	principals PrincipalStore
	durable    revocation.DurableStore
	delivery   Delivery
	auditSink  AuditSink
	logger     *slog.Logger
	built      bool
}

// New returns a Builder preloaded with the policy defaults.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the cache client shared by the revocation registry and
// the brute-force guard.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalStore sets the credential-store collaborator.
func (b *Builder) WithPrincipalStore(s PrincipalStore) *Builder {
	b.principals = s
	return b
}

// WithDurableRevocationStore sets the fallback store behind the
// revocation cache.
func (b *Builder) WithDurableRevocationStore(s revocation.DurableStore) *Builder {
	b.durable = s
	return b
}

// WithDelivery sets the one-time-code delivery collaborator. Required
// only when the SMS method is used.
func (b *Builder) WithDelivery(d Delivery) *Builder {
	b.delivery = d
	return b
}

// WithAuditSink sets the destination for security-event audit records.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wiring and returns the Engine.
// A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.principals == nil {
		return nil, errors.New("principal store is required")
	}
	if b.durable == nil {
		return nil, errors.New("durable revocation store is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	issuer, err := token.NewIssuer(token.Config{
		AccessTTL:     b.config.Token.AccessTTL,
		RefreshTTL:    b.config.Token.RefreshTTL,
		RememberMeTTL: b.config.Token.RememberMeTTL,
		SigningMethod: token.SigningMethod(b.config.Token.SigningMethod),
		PrivateKey:    []byte(b.config.Token.PrivateKey),
		PublicKey:     []byte(b.config.Token.PublicKey),
		Issuer:        b.config.Token.Issuer,
		Leeway:        b.config.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	registry := revocation.New(b.redis, b.durable, revocation.Config{
		KeyPrefix:     b.config.Revocation.KeyPrefix,
		RetryAttempts: b.config.Revocation.RetryAttempts,
		RetryInitial:  b.config.Revocation.RetryInitial,
	}, logger)

	bfGuard := guard.New(b.redis, guard.Config{
		KeyPrefix: b.config.Lockout.KeyPrefix,
		Login: guard.Policy{
			MaxFailures: b.config.Lockout.LoginMaxFailures,
			Duration:    b.config.Lockout.LoginDuration,
		},
		OTP: guard.Policy{
			MaxFailures: b.config.Lockout.OTPMaxFailures,
			Duration:    b.config.Lockout.OTPDuration,
		},
	})

	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    b.config.Audit.Enabled,
		BufferSize: b.config.Audit.BufferSize,
		DropIfFull: b.config.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return &Engine{
		config:     b.config,
		issuer:     issuer,
		registry:   registry,
		guard:      bfGuard,
		hasher:     password.NewHasher(),
		principals: b.principals,
		delivery:   b.delivery,
		audit:      dispatcher,
		metrics:    internalmetrics.New(internalmetrics.Config{Enabled: b.config.Metrics.Enabled}),
		logger:     logger,
	}, nil
}
