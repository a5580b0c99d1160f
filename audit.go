package authcore

import (
	"io"

	internalaudit "github.com/dhirajgiri3/authcore/internal/audit"
)

// AuditEvent is a structured security-event record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an io.Writer, one object
// per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// Audit event types, re-exported for sink consumers.
const (
	AuditLoginSuccess   = internalaudit.EventLoginSuccess
	AuditLoginFailure   = internalaudit.EventLoginFailure
	AuditLockout        = internalaudit.EventLockout
	AuditRotation       = internalaudit.EventRotation
	AuditReplayDetected = internalaudit.EventReplayDetected
	AuditLogout         = internalaudit.EventLogout
	AuditLogoutAll      = internalaudit.EventLogoutAll
	AuditPasswordChange = internalaudit.EventPasswordChange
	AuditMFAEnrolled    = internalaudit.EventMFAEnrolled
	AuditMFAActivated   = internalaudit.EventMFAActivated
	AuditMFADisabled    = internalaudit.EventMFADisabled
	AuditTOTPCheck      = internalaudit.EventTOTPCheck
)

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
