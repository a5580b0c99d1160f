package authcore

import (
	internalmetrics "github.com/dhirajgiri3/authcore/internal/metrics"
)

// MetricID identifies a specific counter in the in-process metrics.
type MetricID = internalmetrics.ID

// Engine counters, re-exported for snapshot consumers.
const (
	MetricLoginSuccess      = internalmetrics.LoginSuccess
	MetricLoginFailure      = internalmetrics.LoginFailure
	MetricLoginLockedOut    = internalmetrics.LoginLockedOut
	MetricRotationSuccess   = internalmetrics.RotationSuccess
	MetricRotationFailure   = internalmetrics.RotationFailure
	MetricReplayDetected    = internalmetrics.ReplayDetected
	MetricValidateSuccess   = internalmetrics.ValidateSuccess
	MetricValidateFailure   = internalmetrics.ValidateFailure
	MetricVersionBump       = internalmetrics.VersionBump
	MetricLogout            = internalmetrics.Logout
	MetricLogoutAll         = internalmetrics.LogoutAll
	MetricMFAEnrolled       = internalmetrics.MFAEnrolled
	MetricMFAActivated      = internalmetrics.MFAActivated
	MetricMFADisabled       = internalmetrics.MFADisabled
	MetricOTPCheckSuccess   = internalmetrics.OTPCheckSuccess
	MetricOTPCheckFailure   = internalmetrics.OTPCheckFailure
	MetricOTPLockedOut      = internalmetrics.OTPLockedOut
	MetricDependencyFailure = internalmetrics.DependencyFailure
)

// Metrics holds the atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance. When cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{Enabled: cfg.Enabled})
}
