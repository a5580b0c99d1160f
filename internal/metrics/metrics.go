// Package metrics provides lock-free in-process counters for engine
// observability. Counters are incremented atomically and exported as a
// point-in-time snapshot; metric export belongs to the embedding
// application.
package metrics

import "sync/atomic"

// ID identifies one counter.
type ID uint16

const (
	LoginSuccess ID = iota
	LoginFailure
	LoginLockedOut
	RotationSuccess
	RotationFailure
	ReplayDetected
	ValidateSuccess
	ValidateFailure
	VersionBump
	Logout
	LogoutAll
	MFAEnrolled
	MFAActivated
	MFADisabled
	OTPCheckSuccess
	OTPCheckFailure
	OTPLockedOut
	DependencyFailure

	idCount
)

// Config controls whether counting is active.
type Config struct {
	Enabled bool
}

// Metrics holds the counter slots. When disabled all operations are
// no-ops.
type Metrics struct {
	enabled  bool
	counters [idCount]atomic.Uint64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[ID]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Inc(id ID) {
	if m == nil || !m.enabled || id >= idCount {
		return
	}
	m.counters[id].Add(1)
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[ID]uint64, idCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := ID(0); id < idCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
